package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"titanflow/internal/agent"
	"titanflow/internal/domain"
)

// WSMessage is the JSON protocol of /ws/analyze.
//
//	client: {"type": "analyze", "document": "..."}
//	server: {"type": "state", "event": {...}} per transition, then
//	        {"type": "decision", "decision": {...}} or {"type": "error", "detail": "..."}
type WSMessage struct {
	Type     string           `json:"type"`
	Document string           `json:"document,omitempty"`
	Event    *agent.Event     `json:"event,omitempty"`
	Decision *domain.Decision `json:"decision,omitempty"`
	Detail   string           `json:"detail,omitempty"`
}

// Message types.
const (
	WSTypeAnalyze  = "analyze"
	WSTypeState    = "state"
	WSTypeDecision = "decision"
	WSTypeError    = "error"
)

// jsonMarshal is used when encoding responses; tests may replace it to force Marshal errors.
// Access is protected by jsonMarshalMu for race-safe test swaps.
var (
	jsonMarshalMu sync.RWMutex
	jsonMarshal   = json.Marshal
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleAnalyzeWS upgrades the request and analyzes each document the client
// sends, streaming state transitions while the run progresses. Runs on one
// connection are sequential.
func (s *Server) handleAnalyzeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log().Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.maxUpload())

	var writeMu sync.Mutex
	send := func(msg *WSMessage) { writeWSMessage(conn, &writeMu, msg) }
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var in WSMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			send(&WSMessage{Type: WSTypeError, Detail: "invalid JSON"})
			continue
		}
		if in.Type != "" && in.Type != WSTypeAnalyze {
			send(&WSMessage{Type: WSTypeError, Detail: "unsupported message type " + in.Type})
			continue
		}
		if s.analyzer == nil {
			send(&WSMessage{Type: WSTypeError, Detail: "analyzer not configured"})
			continue
		}

		res, err := s.analyzer.AnalyzeText(r.Context(), in.Document, func(ev agent.Event) {
			send(&WSMessage{Type: WSTypeState, Event: &ev})
		})
		if err != nil {
			send(&WSMessage{Type: WSTypeError, Detail: err.Error()})
			continue
		}
		send(&WSMessage{Type: WSTypeDecision, Decision: res.Decision})
	}
}

func writeWSMessage(conn *websocket.Conn, mu *sync.Mutex, msg *WSMessage) {
	jsonMarshalMu.RLock()
	marshal := jsonMarshal
	jsonMarshalMu.RUnlock()
	data, err := marshal(msg)
	if err != nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, data)
}
