// Package server coordinates session registration, location fan-out, and
// connection cleanup for the GeoPulse WebSocket service via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// locationReport is a validated location_acquired event on its way from a
// client's read pump to the hub loop.
type locationReport struct {
	sender *Client
	loc    UserLocation
}

// Hub owns the mapping between domain events and the sessions that receive
// them. All registry mutations and fan-outs happen on the single Run
// goroutine, so events are applied one at a time in arrival order and each
// broadcast reflects a consistent registry state.
type Hub struct {
	registry *Registry

	// clients is touched only by the Run goroutine.
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	reports    chan locationReport

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub backed by the given registry. The registry is
// injected rather than owned so the health endpoint can share it.
func NewHub(registry *Registry) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   registry,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		reports:    make(chan locationReport),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run processes connect, disconnect, and location-report events one at a
// time until Shutdown is called. It should be started in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.handleConnect(client)

		case client := <-h.unregister:
			h.handleDisconnect(client)

		case report := <-h.reports:
			h.handleReport(report)
		}
	}
}

// handleConnect registers the session and primes the new client with a
// connected ack followed by the full-state snapshot. Peers are not notified
// of the join; they learn about the session from its first location report.
func (h *Hub) handleConnect(client *Client) {
	if client == nil {
		slog.Warn("received nil client registration; skipping")
		return
	}

	if _, err := h.registry.Register(client.id); err != nil {
		// Never overwrite the existing session: the new connection is the
		// one that gets rejected.
		slog.Error("rejecting connection with duplicate session id",
			"id", client.id, "addr", client.addr, "error", err)
		client.reject()
		return
	}

	h.clients[client.id] = client
	metricConnectedSessions.Set(float64(h.registry.Count()))

	if client.conn != nil {
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

	client.trySend(connectedMessage())

	snapshot, err := initStateMessage(h.registry.Snapshot())
	if err != nil {
		slog.Error("building init_state snapshot", "id", client.id, "error", err)
	} else {
		client.trySend(snapshot)
	}

	slog.Info("session connected", "id", client.id, "addr", client.addr, "sessions", len(h.clients))
}

// handleReport applies a location report to the registry and fans the
// update out to every connected session, the sender included. The sender
// already knows its own position; the echo matches the source contract.
func (h *Hub) handleReport(report locationReport) {
	loc := report.loc

	if _, err := h.registry.UpdateLocation(loc.UserID, *loc.Latitude, *loc.Longitude); err != nil {
		// Reachable when a report races a disconnect; must not affect
		// other sessions.
		slog.Warn("dropping location report for unknown session",
			"id", loc.UserID, "from", report.sender.addr)
		return
	}
	metricLocationReports.Inc()

	msg, err := locationUpdateMessage(loc)
	if err != nil {
		slog.Error("encoding location update", "id", loc.UserID, "error", err)
		return
	}

	h.dropClients(h.fanOut(msg))
}

// handleDisconnect removes the session and tells the survivors. Duplicate
// disconnect events for the same client are no-ops.
func (h *Hub) handleDisconnect(client *Client) {
	if client == nil || h.clients[client.id] != client {
		return
	}

	h.removeClient(client)
	slog.Info("session disconnected", "id", client.id, "addr", client.addr, "sessions", len(h.clients))

	msg, err := userDisconnectedMessage(client.id)
	if err != nil {
		slog.Error("encoding user_disconnected", "id", client.id, "error", err)
		return
	}

	h.dropClients(h.fanOut(msg))
}

// removeClient deletes the client from the hub and the registry and closes
// its send channel so the write pump terminates.
func (h *Hub) removeClient(client *Client) {
	delete(h.clients, client.id)
	client.closed = true
	close(client.send)

	if _, err := h.registry.Remove(client.id); err != nil {
		slog.Debug("session already absent from registry", "id", client.id)
	}
	metricConnectedSessions.Set(float64(h.registry.Count()))
}

// fanOut delivers msg to every connected client and returns the clients
// whose send buffers were full.
func (h *Hub) fanOut(msg []byte) []*Client {
	var failed []*Client
	for _, client := range h.clients {
		if client.trySend(msg) {
			metricBroadcastsSent.Inc()
		} else {
			failed = append(failed, client)
		}
	}
	return failed
}

// dropClients disconnects clients that could not be delivered to and
// notifies the survivors. Delivery failures during the notification itself
// join the same worklist, which terminates once the client table stops
// shrinking.
func (h *Hub) dropClients(failed []*Client) {
	for len(failed) > 0 {
		client := failed[0]
		failed = failed[1:]

		if h.clients[client.id] != client {
			continue
		}

		h.removeClient(client)
		metricDroppedClients.Inc()
		slog.Warn("dropping client with full send buffer", "id", client.id, "addr", client.addr)

		msg, err := userDisconnectedMessage(client.id)
		if err != nil {
			continue
		}
		failed = append(failed, h.fanOut(msg)...)
	}
}

// shutdownClients closes every active connection so the pump goroutines
// unwind.
func (h *Hub) shutdownClients() {
	slog.Info("closing all client connections", "sessions", len(h.clients))

	for _, client := range h.clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Warn("closing client connection", "addr", client.addr, "error", err)
		}
	}
}

// Shutdown stops the event loop and waits for all pump goroutines to
// finish, or gives up after the timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	slog.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		slog.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		slog.Warn("hub shutdown timed out; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
