package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"church-portal-be/internal/identity"
	"church-portal-be/internal/rpc"
	"church-portal-be/internal/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Dispatcher handles one inbound frame.
type Dispatcher interface {
	Dispatch(ctx context.Context, conn rpc.Conn, raw []byte) rpc.Response
}

// Releaser drops every resource a connection owns once it is gone.
type Releaser interface {
	ReleaseConnection(connID string)
}

// Limits bound a single connection.
type Limits struct {
	MaxMessageBytes int64
	MaxInFlight     int64
}

// Client is a middleman between the websocket connection and the hub. It implements rpc.Conn.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	dispatcher Dispatcher
	releaser   Releaser

	// Buffered channel of outbound messages. Never closed; writePump stops on ctx.
	send chan []byte

	// Guarded by hub.mu.
	groups map[string]struct{}

	identMu sync.RWMutex
	ident   *identity.Identity

	inflight    *semaphore.Weighted
	maxInFlight int64
	limits      Limits

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	logger logger.ILogger
}

func newClient(hub *Hub, conn *websocket.Conn, dispatcher Dispatcher, releaser Releaser, limits Limits, log logger.ILogger) *Client {
	if limits.MaxInFlight <= 0 {
		limits.MaxInFlight = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:          uuid.NewString(),
		hub:         hub,
		conn:        conn,
		dispatcher:  dispatcher,
		releaser:    releaser,
		send:        make(chan []byte, sendBuffer),
		groups:      make(map[string]struct{}),
		inflight:    semaphore.NewWeighted(limits.MaxInFlight),
		maxInFlight: limits.MaxInFlight,
		limits:      limits,
		ctx:         ctx,
		cancel:      cancel,
		logger:      log,
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Identity() *identity.Identity {
	c.identMu.RLock()
	defer c.identMu.RUnlock()
	return c.ident
}

func (c *Client) SetIdentity(id *identity.Identity) {
	c.identMu.Lock()
	c.ident = id
	c.identMu.Unlock()
}

func (c *Client) Join(group string) { c.hub.Join(c, group) }

func (c *Client) Leave(group string) { c.hub.Leave(c, group) }

// push queues a server-initiated frame without blocking. A full buffer means the peer is
// not reading; the connection is closed and false returned.
func (c *Client) push(payload []byte) bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.close()
		return false
	}
}

// reply queues a response, waiting for buffer space until the connection ends.
func (c *Client) reply(resp rpc.Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("Client", "Failed to encode response", map[string]interface{}{
			"connection_id": c.id,
			"request_id":    resp.ID,
			"error":         err,
		})
		return
	}
	select {
	case c.send <- payload:
	case <-c.ctx.Done():
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// readPump reads frames and dispatches each one on its own goroutine, at most maxInFlight
// at a time. Returns when the peer goes away.
func (c *Client) readPump() {
	defer c.close()

	if c.limits.MaxMessageBytes > 0 {
		c.conn.SetReadLimit(c.limits.MaxMessageBytes)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Client", "Read error", map[string]interface{}{"connection_id": c.id, "error": err})
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if err := c.inflight.Acquire(c.ctx, 1); err != nil {
			return
		}
		go func(raw []byte) {
			defer c.inflight.Release(1)
			c.reply(c.dispatcher.Dispatch(c.ctx, c, raw))
		}(frame)
	}
}

// writePump writes one JSON message per frame and keeps the peer alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// release runs after readPump returns: in-flight handlers finish first so that nothing
// reopens a transfer session after it has been dropped.
func (c *Client) release() {
	c.close()
	_ = c.inflight.Acquire(context.Background(), c.maxInFlight)
	c.inflight.Release(c.maxInFlight)

	if c.releaser != nil {
		c.releaser.ReleaseConnection(c.id)
	}
	c.hub.remove(c)
	c.SetIdentity(nil)
}
