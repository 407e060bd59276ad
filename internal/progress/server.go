package progress

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Broadcaster fans a stream of Events out to every connected websocket
// client on /events, the watch-live counterpart to a Reporter callback
// consuming events synchronously in-process.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan Event
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[*websocket.Conn]chan Event)}
}

// Reporter adapts the Broadcaster into a progress.Reporter suitable for
// passing straight to a Builder or Reifier.
func (b *Broadcaster) Reporter() Reporter {
	return b.Publish
}

// Publish fans evt out to every currently connected client, dropping it
// for any client whose outbound buffer is full rather than blocking the
// whole install on a slow websocket peer.
func (b *Broadcaster) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.clients {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Router returns a chi.Router exposing GET /events, upgrading each
// connection to a websocket and streaming Events published via Publish
// until the client disconnects.
func (b *Broadcaster) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/events", b.handleEvents)
	return r
}

func (b *Broadcaster) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := make(chan Event, 64)
	b.mu.Lock()
	b.clients[conn] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
	}()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	go drainReads(conn)

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			if evt.Type == Done || evt.Type == Error {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainReads discards client messages (this endpoint is output-only)
// but keeps reading so pong control frames get processed and the
// connection's read deadline stays alive.
func drainReads(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Serve starts an HTTP server on addr exposing the Broadcaster's
// /events route. No command in this module calls it.
func (b *Broadcaster) Serve(addr string) error {
	log.Printf("progress server listening on %s", addr)
	return http.ListenAndServe(addr, b.Router())
}
