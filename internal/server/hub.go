// Package server coordinates client registration, chat events, presence,
// and full-log broadcast for the chat system via the Hub type.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Tyrowin/livechat/internal/chat"
)

// Persister receives every new version of the message log. Submit must
// not block on I/O.
type Persister interface {
	Submit(snapshot []chat.Entry) uint64
}

// Hub is the single dispatcher of the chat room. Every connection event
// is handled on the goroutine running Run, so the message log and the
// presence registry are never mutated concurrently.
type Hub struct {
	clients    map[*Client]bool
	events     chan clientEvent
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	// dropped holds clients whose buffer overflowed during the current
	// event. They are disconnected once that event's broadcasts are done.
	dropped []*Client

	messages  *chat.MessageLog
	presence  *chat.Registry
	persister Persister
	policy    ChatConfig
	log       *slog.Logger
}

// NewHub creates a hub around an already loaded message log.
func NewHub(messages *chat.MessageLog, presence *chat.Registry, persister Persister, policy ChatConfig, log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	if policy.DisconnectNotice == "" {
		policy.DisconnectNotice = defaultConfig().Chat.DisconnectNotice
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		events:     make(chan clientEvent),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		messages:   messages,
		presence:   presence,
		persister:  persister,
		policy:     policy,
		log:        log,
	}
}

// Messages returns the log owned by the hub.
func (h *Hub) Messages() *chat.MessageLog {
	return h.messages
}

// Presence returns the registry owned by the hub.
func (h *Hub) Presence() *chat.Registry {
	return h.presence
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Register hands a new connection to the hub, which starts its pumps.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) enqueue(ev clientEvent) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) detach(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Run starts the hub's main event loop. It should be called in a separate
// goroutine and returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)
			h.startPumps(client)

		case client := <-h.unregister:
			h.disconnect(client, "connection closed")
			h.dropSlowClients()

		case ev := <-h.events:
			h.dispatch(ev)
			h.dropSlowClients()
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()
	h.log.Info("Client registered", "client", client.id, "addr", client.addr, "clients", clientCount)
}

func (h *Hub) startPumps(client *Client) {
	if client.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) isRegistered(client *Client) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.clients[client]
}

// dispatch handles one inbound event. A panic in a handler is logged and
// never stops the loop.
func (h *Hub) dispatch(ev clientEvent) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Recovered from panic while handling event", "event", ev.kind, "panic", r)
		}
	}()

	if ev.client == nil || !h.isRegistered(ev.client) {
		h.log.Debug("Dropping event from unregistered client", "event", ev.kind)
		return
	}

	switch ev.kind {
	case EventJoin:
		h.handleJoin(ev.client, ev.join.Username)
	case EventMessage:
		h.handleMessage(ev.client, ev.message)
	case EventLeave:
		h.disconnect(ev.client, "left")
	case eventRejected:
		h.reject(ev.client, ev.err)
	default:
		h.log.Warn("Unknown event kind", "event", ev.kind)
	}
}

func (h *Hub) handleJoin(client *Client, username string) {
	if current, ok := h.presence.Username(client.id); ok && current == username {
		h.log.Debug("Repeated join ignored", "client", client.id, "username", username)
		return
	}
	alreadyPresent := lo.Contains(h.presence.Presence(), username)

	presence, err := h.presence.Join(client.id, username)
	if err != nil {
		h.reject(client, err)
		return
	}
	if alreadyPresent {
		h.log.Debug("Username already present; sharing presence entry", "client", client.id, "username", username)
	}
	h.log.Info("User joined", "client", client.id, "username", username, "connected", len(presence))

	h.sendTo(client, EventHistory, h.messages.Snapshot())
	h.broadcast(EventUserConnected, PresenceUpdate{Username: username, ConnectedUsers: presence})
}

func (h *Hub) handleMessage(client *Client, p messagePayload) {
	entry, err := h.buildEntry(client, p)
	if err != nil {
		h.reject(client, err)
		return
	}
	h.appendAndBroadcast(entry)
}

// buildEntry resolves the author of a message. A joined connection always
// writes under its own username; otherwise the payload username is used,
// and a message with no username at all is only accepted when anonymous
// messages are allowed.
func (h *Hub) buildEntry(client *Client, p messagePayload) (chat.Entry, error) {
	username, identified := h.presence.Username(client.id)
	if !identified {
		username = p.Username
	}
	if username == "" && !h.policy.AllowAnonymous {
		return chat.Entry{}, fmt.Errorf("%w: message from a connection that has not joined", chat.ErrMalformedEvent)
	}
	return chat.Entry{Username: username, Message: p.Message, Extra: p.Extra}, nil
}

// appendAndBroadcast appends entry, hands the new log to the persister and
// sends the full log to every connection, in that order.
func (h *Hub) appendAndBroadcast(entry chat.Entry) {
	length := h.messages.Append(entry)
	snapshot := h.messages.Snapshot()
	version := h.persister.Submit(snapshot)
	h.log.Debug("Entry appended", "username", entry.Username, "entries", length, "version", version)
	h.broadcast(EventMessageLogs, snapshot)
}

func (h *Hub) handleLeave(client *Client) {
	username, presence, err := h.presence.Leave(client.id)
	if errors.Is(err, chat.ErrUnknownConnection) {
		h.log.Debug("Anonymous connection left", "client", client.id)
		return
	}
	h.log.Info("User left", "client", client.id, "username", username, "connected", len(presence))

	h.appendAndBroadcast(chat.Entry{Username: username, Message: h.policy.DisconnectNotice})
	h.broadcast(EventUserDisconnected, PresenceUpdate{Username: username, ConnectedUsers: presence})
}

// disconnect removes client from the hub, closes its send channel and runs
// the leave transition. Calling it for a client already gone is a no-op.
func (h *Hub) disconnect(client *Client, reason string) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	close(client.send)
	h.log.Info("Client unregistered", "client", client.id, "addr", client.addr, "reason", reason, "clients", clientCount)

	h.handleLeave(client)
}

func (h *Hub) reject(client *Client, err error) {
	h.log.Warn("Rejected event", "client", client.id, "addr", client.addr, "error", err)
	h.sendTo(client, EventError, ErrorNotice{Error: err.Error()})
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Recovered from panic in safeSend", "panic", r)
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// sendTo delivers an event to a single connection. A connection whose
// buffer is full is marked for dropping.
func (h *Hub) sendTo(client *Client, event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		h.log.Error("Failed to encode event", "event", event, "error", err)
		return
	}
	if !h.safeSend(client, payload) {
		h.markSlow(client)
	}
}

// broadcast delivers an event to every registered connection. Connections
// whose buffer is full are marked for dropping.
func (h *Hub) broadcast(event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		h.log.Error("Failed to encode event", "event", event, "error", err)
		return
	}

	clients := h.getClientSnapshot()
	h.log.Debug("Broadcasting", "event", event, "clients", len(clients))

	for _, client := range clients {
		if !h.safeSend(client, payload) {
			h.markSlow(client)
		}
	}
}

// markSlow stops all further delivery to client and queues it for
// disconnection. A client is queued at most once.
func (h *Hub) markSlow(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok || client.closed {
		return
	}
	client.closed = true
	h.dropped = append(h.dropped, client)
}

// dropSlowClients disconnects every queued client. A leave broadcast may
// overflow further clients; they are queued and handled in the same pass.
func (h *Hub) dropSlowClients() {
	for len(h.dropped) > 0 {
		client := h.dropped[0]
		h.dropped = h.dropped[1:]
		h.disconnect(client, "send buffer full")
	}
}

// getClientSnapshot returns a thread-safe snapshot of all current clients
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// shutdownClients releases every client without running leave transitions:
// closing send stops the write pump and closing the socket stops the read
// pump.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, client)
		client.closed = true
		close(client.send)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("Error closing client connection", "addr", client.addr, "error", err)
		}
	}

	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown stops the hub and waits for all client goroutines to complete,
// or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
