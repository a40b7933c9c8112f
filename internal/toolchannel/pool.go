package toolchannel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"titanflow/internal/domain"
)

// Pool keeps long-lived tool-server workers, each holding one initialized
// session. A worker that times out or fails at the transport level is
// discarded and replaced; tool-level error results leave it in service.
//
// At most size workers exist at any time: a worker is either idle or held
// by the goroutine that owns one of the size tokens.
type Pool struct {
	launcher Launcher
	cfg      settings

	tokens chan struct{}
	idle   chan *worker

	generation atomic.Uint64
	nextID     atomic.Int64

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
	sched   *cron.Cron
	bg      sync.WaitGroup
}

type worker struct {
	id      int64
	gen     uint64
	sess    Session
	started time.Time
	calls   int
}

var _ domain.ToolInvoker = (*Pool)(nil)

// NewPool panics if launcher is nil. Workers start lazily unless Start is
// called.
func NewPool(launcher Launcher, opts ...Option) *Pool {
	if launcher == nil {
		panic("toolchannel: launcher must not be nil")
	}
	cfg := newSettings(opts)
	return &Pool{
		launcher: launcher,
		cfg:      cfg,
		tokens:   make(chan struct{}, cfg.size),
		idle:     make(chan *worker, cfg.size),
		closeCh:  make(chan struct{}),
	}
}

// Size returns the maximum number of workers.
func (p *Pool) Size() int { return cap(p.tokens) }

// Start warms every worker concurrently and schedules recycling when a cron
// spec was configured. A failed warm-up is returned but leaves the pool
// usable: missing workers are launched on demand.
func (p *Pool) Start(ctx context.Context) error {
	if p.cfg.recycle != "" {
		sched := cron.New()
		if _, err := sched.AddFunc(p.cfg.recycle, p.Recycle); err != nil {
			return fmt.Errorf("%w %q: %v", ErrRecycleSpec, p.cfg.recycle, err)
		}
		p.mu.Lock()
		p.sched = sched
		p.mu.Unlock()
		sched.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.Size(); i++ {
		g.Go(func() error {
			if err := p.acquire(gctx); err != nil {
				return err
			}
			defer p.release()

			w, err := p.launch(gctx)
			if err != nil {
				return err
			}
			p.checkin(w)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("toolchannel: warm-up: %w", err)
	}
	p.cfg.logger.Info("tool pool ready", "workers", p.Size())
	return nil
}

// Invoke runs one tool call on a pooled worker. It never panics and never
// returns an empty string.
func (p *Pool) Invoke(ctx context.Context, name string, args map[string]any) (out string) {
	start := time.Now()
	var w *worker
	defer func() {
		if r := recover(); r != nil {
			out = Failure(fmt.Errorf("panic: %v", r))
			if w != nil {
				p.discard(w, "panic")
			}
		}
		p.cfg.observer.ToolInvoked(name, !IsFailure(out), time.Since(start))
	}()

	if err := p.acquire(ctx); err != nil {
		return Failure(err)
	}
	defer p.release()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.timeout)
	defer cancel()

	w, err := p.checkout(ctx)
	if err != nil {
		return Failure(describe(err, p.cfg.timeout))
	}

	text, err := call(ctx, w.sess, name, args)
	var toolErr *errToolResult
	switch {
	case err == nil:
		w.calls++
		p.checkin(w)
		return text
	case errors.As(err, &toolErr):
		w.calls++
		p.checkin(w)
		return Failure(err)
	default:
		p.cfg.logger.Warn("tool worker failed", "worker", w.id, "tool", name, "error", err)
		p.discard(w, reason(err))
		p.replenish()
		w = nil
		return Failure(describe(err, p.cfg.timeout))
	}
}

func reason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "transport"
}

func (p *Pool) acquire(ctx context.Context) error {
	select {
	case <-p.closeCh:
		return ErrPoolClosed
	default:
	}
	select {
	case p.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closeCh:
		return ErrPoolClosed
	}
}

func (p *Pool) release() { <-p.tokens }

// checkout takes an idle worker of the current generation or launches one.
// The caller must hold a token.
func (p *Pool) checkout(ctx context.Context) (*worker, error) {
	for {
		select {
		case w := <-p.idle:
			if w.gen == p.generation.Load() {
				return w, nil
			}
			p.closeWorker(w)
		default:
			return p.launch(ctx)
		}
	}
}

func (p *Pool) launch(ctx context.Context) (*worker, error) {
	hctx, cancel := context.WithTimeout(ctx, p.cfg.timeout)
	defer cancel()

	sess, err := p.launcher.Launch(hctx)
	if err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}
	if _, err := handshake(hctx, sess); err != nil {
		sess.Close()
		return nil, err
	}
	w := &worker{
		id:      p.nextID.Add(1),
		gen:     p.generation.Load(),
		sess:    sess,
		started: time.Now(),
	}
	p.cfg.logger.Debug("tool worker started", "worker", w.id)
	return w, nil
}

// checkin returns w to the idle set, or closes it if the pool is closed or
// w belongs to a recycled generation.
func (p *Pool) checkin(w *worker) {
	p.mu.Lock()
	kept := false
	if !p.closed && w.gen == p.generation.Load() {
		select {
		case p.idle <- w:
			kept = true
		default:
		}
	}
	p.mu.Unlock()
	if !kept {
		p.closeWorker(w)
	}
}

func (p *Pool) discard(w *worker, why string) {
	p.cfg.observer.WorkerRestarted(why)
	p.closeWorker(w)
}

// replenish launches a replacement in the background so the next caller
// does not pay for the handshake.
func (p *Pool) replenish() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.bg.Add(1)
	p.mu.Unlock()
	go func() {
		defer p.bg.Done()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-p.closeCh:
				cancel()
			case <-ctx.Done():
			}
		}()

		if err := p.acquire(ctx); err != nil {
			return
		}
		defer p.release()
		if len(p.idle) > 0 {
			return
		}
		w, err := p.launch(ctx)
		if err != nil {
			p.cfg.logger.Warn("tool worker replacement failed", "error", err)
			return
		}
		p.checkin(w)
	}()
}

func (p *Pool) closeWorker(w *worker) {
	if err := w.sess.Close(); err != nil {
		p.cfg.logger.Debug("tool worker close", "worker", w.id, "error", err)
	}
	p.cfg.logger.Debug("tool worker stopped", "worker", w.id, "calls", w.calls, "age", time.Since(w.started))
}

// Recycle retires every current worker. Idle workers close immediately;
// busy ones close when their call finishes.
func (p *Pool) Recycle() {
	gen := p.generation.Add(1)
	n := 0
	for {
		select {
		case w := <-p.idle:
			p.closeWorker(w)
			n++
			continue
		default:
		}
		break
	}
	p.cfg.observer.WorkerRestarted("recycle")
	p.cfg.logger.Info("tool pool recycled", "generation", gen, "closed_idle", n)
}

// Close stops scheduling, waits for background replacements and closes idle
// workers. Calls in flight finish and then close their worker.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closeCh)
	sched := p.sched
	p.mu.Unlock()

	if sched != nil {
		<-sched.Stop().Done()
	}
	p.bg.Wait()

	var errs []error
	for {
		select {
		case w := <-p.idle:
			if err := w.sess.Close(); err != nil {
				errs = append(errs, fmt.Errorf("worker %d: %w", w.id, err))
			}
			continue
		default:
		}
		break
	}
	return errors.Join(errs...)
}
