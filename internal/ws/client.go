// Package ws implements the per-connection actor of the live protocol: one
// read loop decoding control frames, one write loop draining an ordered
// outbound queue, and one forwarding task per subscribed channel bridging
// the broadcast bus onto that queue.
//
// Only the actor goroutine touches the subscription registry. The read loop
// and the forwarding tasks talk to it over a private event channel, so no
// connection state is ever shared under a lock.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"partyboard/internal/bus"
	"partyboard/internal/domain"
	"partyboard/internal/metrics"
)

const (
	writeDeadline      = 5 * time.Second
	pingInterval       = 30 * time.Second
	pongDeadline       = 60 * time.Second
	outboundBufferSize = 64
	eventBufferSize    = 16
)

// event is the actor's inbox message type.
type event interface{ isEvent() }

type controlEvent struct{ msg inboundMessage }

func (controlEvent) isEvent() {}

type decodeErrorEvent struct{ err error }

func (decodeErrorEvent) isEvent() {}

type forwarderDoneEvent struct {
	channel domain.Channel
	handle  *handle
	lagged  bool
}

func (forwarderDoneEvent) isEvent() {}

// Client is one live viewer connection. Create with NewClient and drive it
// with Serve; Serve returns once the connection is fully torn down.
type Client struct {
	id       uuid.UUID
	conn     *websocket.Conn
	bus      *bus.Bus
	clock    clockwork.Clock
	events   chan event
	outbound chan outboundMessage
	registry *registry
}

func NewClient(conn *websocket.Conn, b *bus.Bus, clock clockwork.Clock) *Client {
	return &Client{
		id:       uuid.New(),
		conn:     conn,
		bus:      b,
		clock:    clock,
		events:   make(chan event, eventBufferSize),
		outbound: make(chan outboundMessage, outboundBufferSize),
		registry: newRegistry(),
	}
}

// Serve runs the connection until the peer disconnects, either pump fails,
// or ctx is cancelled. On exit every forwarding task has been cancelled and
// the underlying connection closed; no bus cursor outlives the actor beyond
// the cancelled tasks' own cooperative shutdown.
func (c *Client) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.WSActiveConnections.Inc()
	defer metrics.WSActiveConnections.Dec()

	slog.Debug("Client connected", "client_id", c.id.String())

	c.configurePongHandler()

	readerDone := make(chan struct{})
	go func() {
		c.readLoop(readerDone)
		cancel()
	}()
	go func() {
		c.writeLoop(ctx)
		cancel()
	}()

	defer func() {
		c.registry.removeAll()
		_ = c.conn.Close()

		// Drain the inbox until the read loop observes the closed
		// connection, so it can never block sending to an abandoned channel.
		for {
			select {
			case <-c.events:
			case <-readerDone:
				slog.Debug("Client disconnected", "client_id", c.id.String())
				return
			}
		}
	}()

	for {
		select {
		case ev := <-c.events:
			c.handleEvent(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) handleEvent(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case controlEvent:
		switch ev.msg.Type {
		case typeSubscribe:
			c.handleSubscribe(ctx, ev.msg.Channel)
		case typeUnsubscribe:
			c.handleUnsubscribe(ctx, ev.msg.Channel)
		default:
			metrics.WSDecodeErrorsTotal.Inc()
			c.enqueue(ctx, errMsg(fmt.Sprintf("unknown message type %q", ev.msg.Type)))
		}
	case decodeErrorEvent:
		metrics.WSDecodeErrorsTotal.Inc()
		c.enqueue(ctx, errMsg(ev.err.Error()))
	case forwarderDoneEvent:
		// The task ended on its own (bus lag or bus shutdown). Clearing the
		// entry lets a later subscribe start over with a fresh cursor.
		if c.registry.removeIf(ev.channel, ev.handle) && ev.lagged {
			slog.Info("Subscription dropped after bus lag", "client_id", c.id.String(), "channel", ev.channel)
		}
	}
}

func (c *Client) handleSubscribe(ctx context.Context, channel domain.Channel) {
	if !channel.Valid() {
		c.enqueue(ctx, errMsg(fmt.Sprintf("%s: %q", domain.ErrUnknownChannel, channel)))
		return
	}

	// A duplicate subscribe keeps the existing task and its bus cursor; the
	// acknowledgment below is sent either way.
	if !c.registry.has(channel) {
		fwdCtx, fwdCancel := context.WithCancel(ctx)
		h := c.registry.insert(channel, fwdCancel)
		go c.forward(fwdCtx, channel, h)
		slog.Debug("Client subscribed", "client_id", c.id.String(), "channel", channel)
	}

	c.enqueue(ctx, subscribedMsg(channel))
}

func (c *Client) handleUnsubscribe(ctx context.Context, channel domain.Channel) {
	if !channel.Valid() {
		c.enqueue(ctx, errMsg(fmt.Sprintf("%s: %q", domain.ErrUnknownChannel, channel)))
		return
	}

	if c.registry.remove(channel) {
		slog.Debug("Client unsubscribed", "client_id", c.id.String(), "channel", channel)
	}
	c.enqueue(ctx, unsubscribedMsg(channel))
}

// enqueue puts a frame on the outbound queue, giving up when the actor is
// shutting down rather than blocking forever on a dead write loop.
func (c *Client) enqueue(ctx context.Context, msg outboundMessage) {
	select {
	case c.outbound <- msg:
	case <-ctx.Done():
	}
}

// forward owns one bus cursor and copies batches onto the outbound queue
// until cancelled, the bus closes, or the cursor lags. Lag terminates the
// task: the viewer resubscribes and recovers current state via the read API
// instead of guessing at the gap.
func (c *Client) forward(ctx context.Context, channel domain.Channel, h *handle) {
	sub := c.bus.Subscribe()
	defer sub.Close()

	for {
		batch, err := sub.Recv(ctx)
		if err != nil {
			lagged := errors.Is(err, bus.ErrLagged)
			if lagged {
				metrics.WSLagTerminationsTotal.Inc()
			}
			if ctx.Err() == nil {
				select {
				case c.events <- forwarderDoneEvent{channel: channel, handle: h, lagged: lagged}:
				case <-ctx.Done():
				}
			}
			return
		}

		select {
		case c.outbound <- listingsMsg(batch):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) readLoop(done chan struct{}) {
	defer close(done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// Malformed control frames are answered, not fatal.
			c.events <- decodeErrorEvent{err: err}
			continue
		}
		c.events <- controlEvent{msg: msg}
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.outbound:
			data, err := json.Marshal(msg)
			if err != nil {
				slog.Error("Failed to marshal outbound message", "client_id", c.id.String(), "type", msg.Type, "error", err)
				continue
			}
			c.updateWriteDeadline()
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			metrics.WSOutboundFramesTotal.WithLabelValues(msg.Type).Inc()
		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) configurePongHandler() {
	c.updateReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.updateReadDeadline()
		return nil
	})
}

func (c *Client) updateWriteDeadline() {
	_ = c.conn.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
}

func (c *Client) updateReadDeadline() {
	_ = c.conn.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}
