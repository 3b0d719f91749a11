package channel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/trafficpulse/livemap/internal/dispatch"
	"github.com/trafficpulse/livemap/internal/domain"
	"github.com/trafficpulse/livemap/internal/metrics"
)

// ErrChannelActive is returned by Connect while the channel is already
// connecting, connected or reconnecting.
var ErrChannelActive = errors.New("channel: already active")

const (
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultDialTimeout          = 10 * time.Second
)

// Config tunes one channel instance.
type Config struct {
	Endpoint             string
	HeartbeatInterval    time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	DialTimeout          time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	return c
}

// Stats is a point-in-time snapshot of channel health.
type Stats struct {
	State             ConnectionState `json:"state"`
	ReconnectAttempts int             `json:"reconnect_attempts"`
	Subscribed        bool            `json:"subscribed"`
	LastPongAt        time.Time       `json:"last_pong_at,omitempty"`
	LastEventAt       time.Time       `json:"last_event_at,omitempty"`
}

// Channel maintains one connection to the event source, reconnecting with a
// fixed delay when the transport drops and giving up after a bounded number
// of attempts. All transitions are serialized behind one mutex; timers carry
// a generation counter so a timer scheduled before a transition can never
// act after it.
type Channel struct {
	cfg        Config
	transport  Transport
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger

	mu             sync.Mutex
	state          ConnectionState
	gen            uint64
	conn           Conn
	sub            *domain.LngLat
	attempts       int
	heartbeatTimer *time.Timer
	reconnectTimer *time.Timer
	lastPongAt     time.Time
	lastEventAt    time.Time
	onState        []StateHandler
}

// New creates a channel in the Disconnected state. Nothing happens until
// Connect is called.
func New(cfg Config, transport Transport, dispatcher *dispatch.Dispatcher, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		cfg:        cfg.withDefaults(),
		transport:  transport,
		dispatcher: dispatcher,
		log:        log,
		state:      StateDisconnected,
	}
}

// OnState registers a transition observer.
func (c *Channel) OnState(fn StateHandler) {
	c.mu.Lock()
	c.onState = append(c.onState, fn)
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the channel's health counters.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		State:             c.state,
		ReconnectAttempts: c.attempts,
		Subscribed:        c.sub != nil,
		LastPongAt:        c.lastPongAt,
		LastEventAt:       c.lastEventAt,
	}
}

// Subscription returns the current location of interest, nil when none is set.
func (c *Channel) Subscription() *domain.LngLat {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == nil {
		return nil
	}
	loc := *c.sub
	return &loc
}

// Connect starts the channel from Disconnected or Closed. It returns without
// waiting for the dial: the outcome arrives as a transition to Connected or
// Reconnecting. Calling Connect on an active channel returns ErrChannelActive.
func (c *Channel) Connect() error {
	c.mu.Lock()
	if c.state != StateDisconnected && c.state != StateClosed {
		c.mu.Unlock()
		return ErrChannelActive
	}
	c.attempts = 0
	c.transitionLocked(StateConnecting, nil)
	gen := c.gen
	c.mu.Unlock()

	go c.dial(gen)
	return nil
}

// Subscribe stores the location of interest and announces it to the source
// when connected. The subscription is replayed automatically on every
// reconnect; setting a new location replaces the previous one.
func (c *Channel) Subscribe(loc domain.LngLat) {
	c.mu.Lock()
	c.sub = &loc
	connected := c.state == StateConnected
	gen := c.gen
	c.mu.Unlock()

	if connected {
		c.sendFrame(gen, domain.NewSubscribeFrame(loc), "subscribe")
	}
}

// Close forces the channel to Closed from any state: timers are stopped, the
// transport is closed, and pending dials or reconnect waits are invalidated
// before Close returns.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}
	c.transitionLocked(StateClosed, nil)
	c.closeConnLocked()
}

// transitionLocked moves the machine to a new state. It bumps the generation
// counter, so every timer callback and dial goroutine started under the old
// state becomes a no-op, and stops both timers; the new state arms its own.
// Call with c.mu held.
func (c *Channel) transitionLocked(to ConnectionState, cause error) {
	from := c.state
	c.gen++
	c.state = to

	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
		c.heartbeatTimer = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}

	metrics.ChannelTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
	if cause != nil {
		c.log.Info("channel_state", "from", from.String(), "to", to.String(), "cause", cause)
	} else {
		c.log.Info("channel_state", "from", from.String(), "to", to.String())
	}

	ev := StateEvent{From: from, To: to, Err: cause}
	for _, fn := range c.onState {
		fn(ev)
	}
}

// dial opens the transport and drives the machine with the outcome. gen is
// the generation observed on entry to Connecting; a mismatch means the
// machine moved on (explicit close) and the result must be discarded.
func (c *Channel) dial(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	defer cancel()

	conn, err := c.transport.Open(ctx, c.cfg.Endpoint)

	c.mu.Lock()
	if gen != c.gen || c.state != StateConnecting {
		c.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		c.log.Warn("channel_open_failed", "endpoint", c.cfg.Endpoint, "error", err)
		c.enterReconnectingLocked(err)
		c.mu.Unlock()
		return
	}

	c.conn = conn
	c.attempts = 0
	c.transitionLocked(StateConnected, nil)
	connGen := c.gen
	c.heartbeatTimer = time.AfterFunc(c.cfg.HeartbeatInterval, func() { c.heartbeat(connGen) })
	sub := c.sub
	c.mu.Unlock()

	if sub != nil {
		c.sendFrame(connGen, domain.NewSubscribeFrame(*sub), "subscribe")
	}
	go c.readLoop(conn, connGen)
}

// enterReconnectingLocked is the single funnel for lost transports: both a
// failed open and a dead established connection land here. Call with c.mu
// held, before the connection is discarded.
func (c *Channel) enterReconnectingLocked(cause error) {
	c.transitionLocked(StateReconnecting, cause)
	c.closeConnLocked()

	c.attempts++
	if c.attempts > c.cfg.MaxReconnectAttempts {
		c.log.Warn("channel_gave_up", "attempts", c.attempts-1)
		c.transitionLocked(StateClosed, cause)
		return
	}

	metrics.ChannelReconnectAttemptsTotal.Inc()
	gen := c.gen
	c.reconnectTimer = time.AfterFunc(c.cfg.ReconnectInterval, func() { c.redial(gen) })
	c.log.Info("channel_retry_scheduled",
		"attempt", c.attempts,
		"max", c.cfg.MaxReconnectAttempts,
		"delay", c.cfg.ReconnectInterval,
	)
}

// redial fires after the reconnect delay.
func (c *Channel) redial(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.transitionLocked(StateConnecting, nil)
	dialGen := c.gen
	c.mu.Unlock()

	c.dial(dialGen)
}

// heartbeat sends one keep-alive ping and re-arms itself while the channel
// stays Connected in the same generation.
func (c *Channel) heartbeat(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.heartbeatTimer = time.AfterFunc(c.cfg.HeartbeatInterval, func() { c.heartbeat(gen) })
	c.mu.Unlock()

	metrics.ChannelHeartbeatsTotal.Inc()
	c.sendFrame(gen, domain.NewPingFrame(), "ping")
}

// sendFrame marshals and sends one outbound frame. Send failures are never
// returned to callers; they drive the state machine like any other lost
// transport.
func (c *Channel) sendFrame(gen uint64, frame any, kind string) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.log.Error("channel_marshal_failed", "frame", kind, "error", err)
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.mu.Unlock()

	if err := conn.Send(data); err != nil {
		c.log.Warn("channel_send_failed", "frame", kind, "error", err)
		c.connLost(gen, err)
	}
}

// connLost reports a dead established connection.
func (c *Channel) connLost(gen uint64, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.state != StateConnected {
		return
	}
	c.log.Warn("channel_connection_lost", "error", cause)
	c.enterReconnectingLocked(cause)
}

// readLoop consumes frames until the connection dies.
func (c *Channel) readLoop(conn Conn, gen uint64) {
	for {
		data, err := conn.Receive()
		if err != nil {
			c.connLost(gen, err)
			return
		}
		c.handleFrame(gen, data)
	}
}

// handleFrame decodes one inbound frame, applies the well-known side effects
// and hands it to the dispatcher. Malformed frames are counted, logged and
// dropped; the channel stays up.
func (c *Channel) handleFrame(gen uint64, data []byte) {
	var ev domain.InboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		metrics.ChannelDecodeFailuresTotal.Inc()
		c.log.Warn("channel_frame_dropped", "error", &domain.DecodeError{Err: err})
		return
	}
	ev.Raw = data
	ev.ReceivedAt = time.Now()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.lastEventAt = ev.ReceivedAt
	if ev.Type == domain.EventPong {
		c.lastPongAt = ev.ReceivedAt
	}
	c.mu.Unlock()

	metrics.ChannelFramesTotal.WithLabelValues(string(ev.Type)).Inc()

	switch ev.Type {
	case domain.EventSubscriptionConfirmed:
		c.log.Info("channel_subscription_confirmed")
	case domain.EventError:
		c.log.Warn("channel_source_error", "frame", string(ev.Raw))
	}

	c.dispatcher.Dispatch(ev)
}

// closeConnLocked closes and clears the transport. Call with c.mu held.
func (c *Channel) closeConnLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
