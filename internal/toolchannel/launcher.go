package toolchannel

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
)

// closeGrace is how long a session may take to exit after stdin closes
// before the process is killed.
var closeGrace = 2 * time.Second

// StdioLauncher spawns the tool server as a child process speaking MCP over
// stdin/stdout. Its stderr is forwarded to Logger.
type StdioLauncher struct {
	Command string
	Args    []string
	Env     []string
	Logger  *slog.Logger
}

func (l *StdioLauncher) log() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// Launch starts the process. The session kills it on Close if it does not
// exit within closeGrace.
func (l *StdioLauncher) Launch(_ context.Context) (Session, error) {
	procCtx, cancel := context.WithCancel(context.Background())
	c, err := client.NewStdioMCPClientWithOptions(l.Command, l.Env, l.Args,
		transport.WithCommandFunc(func(_ context.Context, command string, env, args []string) (*exec.Cmd, error) {
			cmd := exec.CommandContext(procCtx, command, args...)
			cmd.Env = append(os.Environ(), env...)
			return cmd, nil
		}),
	)
	if err != nil {
		cancel()
		return nil, err
	}

	if stderr, ok := client.GetStderr(c); ok {
		go func() {
			sc := bufio.NewScanner(stderr)
			for sc.Scan() {
				l.log().Debug("tool server", "line", sc.Text())
			}
		}()
	}
	return &procSession{Client: c, cancel: cancel}, nil
}

type procSession struct {
	*client.Client
	cancel context.CancelFunc
}

func (s *procSession) Close() error {
	done := make(chan error, 1)
	go func() { done <- s.Client.Close() }()

	select {
	case err := <-done:
		s.cancel()
		return err
	case <-time.After(closeGrace):
		s.cancel()
		<-done
		return nil
	}
}
