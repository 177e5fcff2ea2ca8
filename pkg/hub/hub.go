package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-framegate/pkg/protocol"
)

// Queue sizes.
const (
	broadcastQueue = 256
	clientQueue    = 64
)

// Hub maintains the set of active clients and broadcasts messages to them.
// All client bookkeeping happens on the Run goroutine. For retained topics
// the hub keeps the latest message and replays it to every new client, in
// the order the topics were given.
type Hub struct {
	name   string
	logger *slog.Logger

	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	retain []protocol.MessageType

	mu     sync.RWMutex
	count  int
	latest map[protocol.MessageType]Message

	running atomic.Bool
	dropped atomic.Uint64
}

// New creates a hub retaining the given topics. A nil logger uses
// slog.Default.
func New(name string, logger *slog.Logger, retain ...protocol.MessageType) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, broadcastQueue),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		retain:     retain,
		latest:     make(map[protocol.MessageType]Message),
	}
}

// Run is the hub's main loop. It returns when ctx is cancelled, after
// closing every client's send queue.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		for client := range h.clients {
			h.remove(client)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount()
			h.replay(client)
			h.logger.Info("client connected", "clients", len(h.clients))

		case client := <-h.unregister:
			if h.clients[client] {
				h.remove(client)
				h.logger.Info("client disconnected", "clients", len(h.clients))
			}

		case message := <-h.broadcast:
			h.keep(message)
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// too slow
					h.remove(client)
					h.logger.Warn("dropped slow client", "clients", len(h.clients))
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.setCount()
}

// keep stores message if its topic is retained.
func (h *Hub) keep(message Message) {
	for _, t := range h.retain {
		if t == message.Topic {
			h.mu.Lock()
			h.latest[t] = message
			h.mu.Unlock()
			return
		}
	}
}

// replay queues the retained messages for a new client. The client queue
// is empty here, so this never blocks.
func (h *Hub) replay(client *Client) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, t := range h.retain {
		if m, ok := h.latest[t]; ok {
			select {
			case client.send <- m:
			default:
			}
		}
	}
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}

// Broadcast queues a message for every client. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.logger.Debug("broadcast queue full, dropping message")
	}
}

// Publish encodes data as a topic envelope and broadcasts it.
func (h *Hub) Publish(topic protocol.MessageType, data interface{}) error {
	msg, err := Encode(topic, data)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// Latest returns the last broadcast message of a retained topic.
func (h *Hub) Latest(topic protocol.MessageType) (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.latest[topic]
	return m, ok
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Dropped returns how many broadcasts were dropped on a full queue.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// join registers c unless the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters c unless the hub has stopped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
