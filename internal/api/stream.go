package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type streamFrame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
	TS   string         `json:"ts,omitempty"`
}

// StreamHandler handles GET /v1/assignments/stream. Clients pick topics
// with ?topics=assignments,cycles,orders; default is assignments only.
// Frames are JSON with an event type and payload.
func (s *Server) StreamHandler(w http.ResponseWriter, r *http.Request) {
	topics := []string{TopicAssignments}
	if q := r.URL.Query().Get("topics"); q != "" {
		topics = topics[:0]
		for _, t := range strings.Split(q, ",") {
			switch t = strings.TrimSpace(t); t {
			case TopicAssignments, TopicOrders, TopicCycles:
				topics = append(topics, t)
			default:
				writeProblem(w, http.StatusBadRequest, "Unknown topic", t, r.URL.Path)
				return
			}
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	chans := make(map[string]chan Event, len(topics))
	for _, t := range topics {
		chans[t] = s.Broker.Subscribe(t)
	}
	defer func() {
		for t, ch := range chans {
			s.Broker.Unsubscribe(t, ch)
		}
	}()

	// Fan the per-topic channels into one stream.
	merged := make(chan Event, 16)
	done := make(chan struct{})
	for _, ch := range chans {
		go func(c chan Event) {
			for evt := range c {
				select {
				case merged <- evt:
				case <-done:
					return
				}
			}
		}(ch)
	}
	defer close(done)

	// Reader drains control frames and detects disconnect.
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	_ = conn.WriteJSON(streamFrame{Type: "hello", TS: time.Now().UTC().Format(time.RFC3339)})
	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case evt := <-merged:
			if err := conn.WriteJSON(streamFrame{Type: evt.Type, Data: evt.Data}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
