package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lure-project/lure/internal/events"
	"github.com/lure-project/lure/internal/ping"
)

const (
	feedSendBuffer   = 32
	feedWriteTimeout = 10 * time.Second
	feedPongTimeout  = 60 * time.Second
	feedPingPeriod   = (feedPongTimeout * 9) / 10
	feedReadLimit    = 512
)

// ContactMessage is the JSON frame pushed to feed clients for each contact.
type ContactMessage struct {
	Event      string    `json:"event"`
	Kind       string    `json:"kind"`
	Remote     string    `json:"remote"`
	Request    ping.Kind `json:"request"`
	ReceivedAt time.Time `json:"received_at"`
}

// Feed fans contact events out to websocket clients. A client that cannot
// keep up is disconnected rather than slowing the others down.
type Feed struct {
	mu       sync.Mutex
	clients  map[*feedClient]struct{}
	closed   bool
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewFeed creates a feed accepting websocket upgrades from allowedOrigins.
// An empty list or "*" accepts any origin.
func NewFeed(allowedOrigins []string) *Feed {
	return &Feed{
		clients: make(map[*feedClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: log.With().Str("component", "feed").Logger(),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if a == "*" || a == origin || a == u.Host {
				return true
			}
		}
		return false
	}
}

// ServeWS upgrades the request and streams contacts until the client
// goes away or the feed is closed.
func (f *Feed) ServeWS(c *gin.Context) {
	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.logger.Debug().Err(err).Str("client_ip", c.ClientIP()).Msg("websocket upgrade failed")
		return
	}

	client := &feedClient{conn: conn, send: make(chan []byte, feedSendBuffer)}
	if !f.register(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(feedWriteTimeout))
		conn.Close()
		return
	}
	f.logger.Debug().Str("client_ip", c.ClientIP()).Msg("feed client connected")

	go f.writePump(client)
	f.readPump(client)
}

// readPump discards client messages; it only exists to notice closes and
// answer pings.
func (f *Feed) readPump(client *feedClient) {
	defer f.unregister(client)

	client.conn.SetReadLimit(feedReadLimit)
	client.conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) writePump(client *feedClient) {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *Feed) register(client *feedClient) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.clients[client] = struct{}{}
	return true
}

func (f *Feed) unregister(client *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(client)
}

func (f *Feed) removeLocked(client *feedClient) {
	if _, ok := f.clients[client]; !ok {
		return
	}
	delete(f.clients, client)
	close(client.send)
}

// Broadcast queues msg for every client. Clients with a full send buffer
// are dropped.
func (f *Feed) Broadcast(msg []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for client := range f.clients {
		select {
		case client.send <- msg:
		default:
			f.logger.Warn().Str("remote", client.conn.RemoteAddr().String()).Msg("feed client too slow, disconnecting")
			f.removeLocked(client)
		}
	}
}

// HandleContact is an event bus handler pushing each contact to the feed.
func (f *Feed) HandleContact(ctx context.Context, event events.Event) error {
	req, ok := events.ContactPayload(event)
	if !ok {
		return nil
	}
	if f.Count() == 0 {
		return nil
	}

	data, err := json.Marshal(ContactMessage{
		Event:      "contact",
		Kind:       req.Kind.Name(),
		Remote:     req.Remote(),
		Request:    req.Kind,
		ReceivedAt: req.ReceivedAt,
	})
	if err != nil {
		return err
	}
	f.Broadcast(data)
	return nil
}

// Count returns the number of connected clients.
func (f *Feed) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Close disconnects every client and refuses new ones.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for client := range f.clients {
		f.removeLocked(client)
	}
}
