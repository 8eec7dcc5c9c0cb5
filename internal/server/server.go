package server

import (
	"context"
	"fmt"
	"time"

	"github.com/npezzotti/go-crabs/internal/stats"
	"github.com/npezzotti/go-crabs/internal/types"
	"go.uber.org/zap"
)

const snapshotTimeout = 5 * time.Second

type Presence interface {
	GetOrCreate(ctx context.Context, sessionId string, ownerId *int) (types.Avatar, bool, error)
	Move(ctx context.Context, sessionId string, x, y float64) error
	ListOnline(ctx context.Context) ([]types.Avatar, error)
}

type Messenger interface {
	Post(ctx context.Context, sessionId, text string) (types.Message, error)
	ListLive(ctx context.Context) ([]types.Message, error)
}

// CrabServer owns the connected websocket clients and pushes a fresh
// snapshot of the canvas to all of them whenever Notify is called.
type CrabServer struct {
	log            *zap.SugaredLogger
	presence       Presence
	messages       Messenger
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	registerChan   chan *Client
	deRegisterChan chan *Client
	notifyChan     chan struct{}
	stop           chan struct{}
	done           chan struct{}
}

func NewCrabServer(logger *zap.SugaredLogger, p Presence, m Messenger, sp stats.StatsProvider) *CrabServer {
	return &CrabServer{
		log:            logger,
		presence:       p,
		messages:       m,
		stats:          sp,
		clients:        make(map[*Client]struct{}),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		notifyChan:     make(chan struct{}, 1),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func (cs *CrabServer) Run() {
	for {
		select {
		case client := <-cs.registerChan:
			cs.log.Debugw("adding connection", "remote_addr", client.remoteAddr())
			cs.clients[client] = struct{}{}
			cs.stats.Incr(stats.NumClients)
			if snap, err := cs.snapshot(); err == nil {
				client.queueMessage(SnapshotMessage(snap))
			} else {
				cs.log.Errorw("build snapshot", "error", err)
			}
		case client := <-cs.deRegisterChan:
			if _, ok := cs.clients[client]; ok {
				cs.log.Debugw("removing connection", "remote_addr", client.remoteAddr())
				delete(cs.clients, client)
				cs.stats.Decr(stats.NumClients)
			}
		case <-cs.notifyChan:
			cs.broadcastSnapshot()
		case <-cs.stop:
			cs.log.Info("closing client connections")
			for c := range cs.clients {
				c.stopClient()
				delete(cs.clients, c)
				cs.stats.Decr(stats.NumClients)
			}

			close(cs.done)
			return
		}
	}
}

func (cs *CrabServer) snapshot() (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	avatars, err := cs.presence.ListOnline(ctx)
	if err != nil {
		return nil, fmt.Errorf("list avatars: %w", err)
	}

	messages, err := cs.messages.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return &Snapshot{Avatars: avatars, Messages: messages}, nil
}

func (cs *CrabServer) broadcastSnapshot() {
	if len(cs.clients) == 0 {
		return
	}

	snap, err := cs.snapshot()
	if err != nil {
		cs.log.Errorw("build snapshot", "error", err)
		return
	}

	msg := SnapshotMessage(snap)
	for c := range cs.clients {
		c.queueMessage(msg)
	}
}

// Notify schedules a snapshot broadcast. Calls made before the broadcast runs
// are merged into one.
func (cs *CrabServer) Notify() {
	select {
	case cs.notifyChan <- struct{}{}:
	default:
	}
}

func (cs *CrabServer) RegisterClient(c *Client) {
	select {
	case cs.registerChan <- c:
	case <-cs.done:
		c.stopClient()
	}
}

func (cs *CrabServer) deRegisterClient(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

func (cs *CrabServer) Shutdown(ctx context.Context) error {
	cs.log.Info("received shutdown signal")
	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
