package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-crabs/internal/messaging"
	"github.com/npezzotti/go-crabs/internal/presence"
	"github.com/npezzotti/go-crabs/internal/stats"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
	requestTimeout = 5 * time.Second
)

type Client struct {
	conn     *websocket.Conn
	cs       *CrabServer
	log      *zap.SugaredLogger
	stats    stats.StatsProvider
	ownerId  *int
	send     chan *ServerMessage
	stop     chan struct{}
	stopOnce sync.Once

	// requestedSession is the session named on the upgrade request. It is
	// only bound once hello succeeds for it.
	requestedSession string

	// sessionId is only touched by the read goroutine
	sessionId string
}

// NewClient wraps an upgraded connection. ownerId is the authenticated
// account, if any. A non-empty sessionId is sent as an implicit hello when
// Read starts.
func NewClient(conn *websocket.Conn, cs *CrabServer, l *zap.SugaredLogger, sp stats.StatsProvider, sessionId string, ownerId *int) *Client {
	return &Client{
		conn:             conn,
		cs:               cs,
		log:              l,
		stats:            sp,
		ownerId:          ownerId,
		requestedSession: sessionId,
		send:             make(chan *ServerMessage, 256),
		stop:             make(chan struct{}),
	}
}

func (c *Client) remoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Errorw("failed to serialize message", "error", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.sendMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.helloRequested()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warnw("ws read", "error", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Debugw("error parsing message", "error", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) helloRequested() {
	if c.requestedSession != "" {
		c.hello(0, c.requestedSession)
	}
}

func (c *Client) handleMessage(msg *ClientMessage) {
	switch {
	case msg.Hello != nil:
		c.hello(msg.Id, msg.Hello.SessionId)
	case msg.Move != nil:
		c.move(msg.Id, msg.Move)
	case msg.Say != nil:
		c.say(msg.Id, msg.Say)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) hello(id int, sessionId string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	avatar, created, err := c.cs.presence.GetOrCreate(ctx, sessionId, c.ownerId)
	if errors.Is(err, presence.ErrInvalidSession) {
		c.queueMessage(ErrBadRequest(id, err.Error()))
		return
	}
	if err != nil {
		c.log.Errorw("get or create avatar", "error", err)
		c.queueMessage(ErrInternalError(id))
		return
	}

	c.sessionId = sessionId
	if created {
		c.stats.Incr(stats.AvatarsCreated)
	}
	c.queueMessage(NoErrOK(id, avatar))
	c.cs.Notify()
}

func (c *Client) move(id int, m *Move) {
	if c.sessionId == "" {
		c.queueMessage(ErrNoSession(id))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	err := c.cs.presence.Move(ctx, c.sessionId, m.X, m.Y)
	if errors.Is(err, presence.ErrInvalidPosition) {
		c.queueMessage(ErrBadRequest(id, err.Error()))
		return
	}
	if err != nil {
		c.log.Errorw("move avatar", "error", err)
		c.queueMessage(ErrInternalError(id))
		return
	}

	c.queueMessage(NoErrAccepted(id))
	c.cs.Notify()
}

func (c *Client) say(id int, s *Say) {
	if c.sessionId == "" {
		c.queueMessage(ErrNoSession(id))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	msg, err := c.cs.messages.Post(ctx, c.sessionId, s.Text)
	if errors.Is(err, messaging.ErrNotFound) {
		c.queueMessage(ErrAvatarNotFound(id))
		return
	}
	if err != nil {
		c.log.Errorw("post message", "error", err)
		c.queueMessage(ErrInternalError(id))
		return
	}

	c.stats.Incr(stats.MessagesPosted)
	c.queueMessage(NoErrOK(id, msg))
	c.cs.Notify()
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warnw("write message", "error", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.cs.deRegisterClient(c)
	c.stopClient()
}
