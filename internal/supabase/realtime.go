// Realtime subscription support (Phoenix channel protocol over websocket).
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventHandler receives change events for a subscribed table.
type EventHandler func(event *ChangeEvent)

// ChangeEvent is one row-level change pushed by the realtime service.
type ChangeEvent struct {
	Table  string          `json:"table"`
	Type   string          `json:"type"` // INSERT, UPDATE, DELETE
	Record json.RawMessage `json:"record"`
}

type realtimeMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// RealtimeClient subscribes to table changes over the Supabase realtime
// websocket. One connection serves all subscriptions.
type RealtimeClient struct {
	mu       sync.Mutex
	url      string
	conn     *websocket.Conn
	handlers map[string][]EventHandler
	done     chan struct{}
	ref      int
}

// NewRealtime builds a realtime client from the REST base URL and key.
func NewRealtime(supabaseURL, apiKey string) *RealtimeClient {
	wsURL := supabaseURL
	switch {
	case strings.HasPrefix(wsURL, "https"):
		wsURL = "wss" + wsURL[len("https"):]
	case strings.HasPrefix(wsURL, "http"):
		wsURL = "ws" + wsURL[len("http"):]
	}
	wsURL = strings.TrimSuffix(wsURL, "/") + "/realtime/v1/websocket?apikey=" + apiKey + "&vsn=1.0.0"

	return &RealtimeClient{
		url:      wsURL,
		handlers: make(map[string][]EventHandler),
	}
}

// Connect dials the websocket and starts the read and heartbeat loops.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.done = make(chan struct{})

	go r.readLoop()
	go r.heartbeat()

	return nil
}

// Subscribe registers a handler for changes on a table and joins its topic.
func (r *RealtimeClient) Subscribe(table string, handler EventHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return fmt.Errorf("not connected")
	}

	topic := "realtime:public:" + table
	r.handlers[topic] = append(r.handlers[topic], handler)

	r.ref++
	join := realtimeMessage{
		Topic:   topic,
		Event:   "phx_join",
		Payload: json.RawMessage(`{}`),
		Ref:     strconv.Itoa(r.ref),
	}
	return r.conn.WriteJSON(join)
}

// Close tears the connection down. Safe to call more than once.
func (r *RealtimeClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	close(r.done)

	_ = r.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	err := r.conn.Close()
	r.conn = nil
	return err
}

func (r *RealtimeClient) readLoop() {
	for {
		r.mu.Lock()
		conn := r.conn
		r.mu.Unlock()
		if conn == nil {
			return
		}

		var msg realtimeMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Event != "postgres_changes" && msg.Event != "INSERT" && msg.Event != "UPDATE" && msg.Event != "DELETE" {
			continue
		}

		var event ChangeEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			continue
		}
		if event.Type == "" {
			event.Type = msg.Event
		}

		r.mu.Lock()
		handlers := append([]EventHandler(nil), r.handlers[msg.Topic]...)
		r.mu.Unlock()
		for _, h := range handlers {
			h(&event)
		}
	}
}

func (r *RealtimeClient) heartbeat() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.mu.Lock()
			conn := r.conn
			if conn != nil {
				r.ref++
				_ = conn.WriteJSON(realtimeMessage{
					Topic:   "phoenix",
					Event:   "heartbeat",
					Payload: json.RawMessage(`{}`),
					Ref:     strconv.Itoa(r.ref),
				})
			}
			r.mu.Unlock()
		}
	}
}
