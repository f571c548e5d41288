package link

import (
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onboardlink/sdk/pkg/arena"
	"github.com/onboardlink/sdk/pkg/deframer"
	"github.com/onboardlink/sdk/pkg/dispatch"
	"github.com/onboardlink/sdk/pkg/session"
	"github.com/onboardlink/sdk/pkg/wire"
)

// DefaultArenaCapacity sizes the extent arena backing in-flight sessions
// when a caller does not override it with an Option.
const DefaultArenaCapacity = 4096

// DefaultRetries and DefaultTimeoutMillis apply to a ModeReliable Command
// that leaves Retries unset (nil) or TimeoutMillis at zero.
const (
	DefaultRetries       = 3
	DefaultTimeoutMillis = 200
)

// Core is the onboard link: it owns the codec, arena, session table, ack
// cache, dispatcher and stream deframer, and drives them all under the
// single coarse mutex its BytePipe supplies (§5). Nothing in pkg/arena,
// pkg/session, pkg/dispatch or pkg/deframer takes its own lock; pkg/wire's
// Codec locks only around reading and replacing its key.
type Core struct {
	pipe     BytePipe
	codec    *wire.Codec
	arena    *arena.Arena
	sessions *session.Table
	acks     *session.AckCache
	registry *dispatch.Registry
	dispatch *dispatch.Dispatcher
	frame    *deframer.Deframer
	logger   *log.Logger
	metrics  *metrics

	senderID uint8
	shutdown bool
}

// Option configures a Core at construction time.
type Option func(*Core, *coreConfig)

type coreConfig struct {
	arenaCapacity int
	arenaSlots    int
	registry      prometheus.Registerer
}

// WithArenaCapacity overrides DefaultArenaCapacity.
func WithArenaCapacity(bytes int) Option {
	return func(_ *Core, cfg *coreConfig) { cfg.arenaCapacity = bytes }
}

// WithArenaSlots overrides arena.DefaultTableSize.
func WithArenaSlots(slots int) Option {
	return func(_ *Core, cfg *coreConfig) { cfg.arenaSlots = slots }
}

// WithLogger installs a logger other than log.Default().
func WithLogger(l *log.Logger) Option {
	return func(c *Core, _ *coreConfig) { c.logger = l }
}

// WithMetricsRegisterer registers the core's counters against reg instead
// of prometheus.DefaultRegisterer.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(_ *Core, cfg *coreConfig) { cfg.registry = reg }
}

// New builds a Core over pipe. No key is installed and no handlers are
// registered; call SetKey and RegisterHandler/SetBroadcastHandler as
// needed before the first ReadPoll/FeedByte call.
func New(pipe BytePipe, opts ...Option) *Core {
	cfg := &coreConfig{arenaCapacity: DefaultArenaCapacity, arenaSlots: arena.DefaultTableSize}
	c := &Core{
		pipe:     pipe,
		codec:    wire.NewCodec(),
		sessions: session.NewTable(),
		acks:     session.NewAckCache(),
		registry: dispatch.NewRegistry(),
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(c, cfg)
	}
	c.arena = arena.New(cfg.arenaCapacity, cfg.arenaSlots)
	c.metrics = newMetrics(cfg.registry)
	c.dispatch = dispatch.New(c.registry, c.sessions, c.acks, c.arena, c.sendAckFrame, c.replayExtent, c.logger)
	c.frame = deframer.New(c.codec, c.onFrame, c.logger)
	return c
}

// SetKey installs or clears (nil) the AES-ECB key used for Command.Encrypt
// sends and for decoding encrypted inbound frames.
func (c *Core) SetKey(key []byte) error { return c.codec.SetKey(key) }

// HasKey reports whether an encryption key is currently installed.
func (c *Core) HasKey() bool { return c.codec.HasKey() }

// SenderID and SetSenderID track which end of the link this Core
// represents. The wire format itself carries no sender field; the value is
// kept on the Core only, is never encoded into a frame, and nothing else in
// this module reads it. Carried over from the original Onboard SDK's
// activation handshake.
func (c *Core) SenderID() uint8      { return c.senderID }
func (c *Core) SetSenderID(id uint8) { c.senderID = id }

// RegisterHandler binds fn to (cmdSet, cmdID) on the request path.
func (c *Core) RegisterHandler(cmdSet, cmdID uint8, fn dispatch.HandlerFunc) {
	c.registry.Register(cmdSet, cmdID, fn)
}

// SetBroadcastHandler binds the handler invoked for every inbound frame
// whose payload names dispatch.BroadcastCmdSet.
func (c *Core) SetBroadcastHandler(fn dispatch.BroadcastFunc) { c.registry.SetBroadcastHandler(fn) }

// SetTransparentHandler binds the handler invoked for dispatch.TransparentCmdSet.
func (c *Core) SetTransparentHandler(fn dispatch.BroadcastFunc) {
	c.registry.SetTransparentHandler(fn)
}

// UnexpectedAckCount returns how many inbound ack frames were dropped for
// naming an unknown session or a mismatched sequence number.
func (c *Core) UnexpectedAckCount() int { return c.dispatch.UnexpectedAckCount() }

// ResyncCount returns how many times the stream deframer has discarded a
// corrupt or truncated candidate frame.
func (c *Core) ResyncCount() int { return c.frame.ResyncCount() }

// Send transmits cmd according to its Mode, per §4.4.
func (c *Core) Send(cmd Command) error {
	c.pipe.Lock()
	defer c.pipe.Unlock()

	if c.shutdown {
		return ErrShuttingDown
	}

	body := make([]byte, 2+len(cmd.Payload))
	body[0] = cmd.CmdSet
	body[1] = cmd.CmdID
	copy(body[2:], cmd.Payload)
	if len(body) > wire.MaxPayloadLength {
		return fmt.Errorf("%w: payload of %d bytes exceeds the %d byte frame limit", ErrInvalidArgument, len(cmd.Payload), wire.MaxPayloadLength-2)
	}

	switch cmd.Mode {
	case ModeNoAck:
		return c.sendNoAck(body, cmd)
	case ModeAckOnce:
		return c.sendAckOnce(body, cmd)
	case ModeReliable:
		return c.sendReliable(body, cmd)
	default:
		return fmt.Errorf("%w: unknown session mode %d", ErrInvalidArgument, cmd.Mode)
	}
}

func (c *Core) sendNoAck(body []byte, cmd Command) error {
	seq := c.sessions.NextSequence()
	frame, err := c.codec.Encode(wire.EncodeParams{
		SessionID: wire.SessionNoAck,
		Sequence:  seq,
		Encrypt:   cmd.Encrypt,
		Payload:   body,
	})
	if err != nil {
		return err
	}
	if err := c.pipe.Send(frame); err != nil {
		return err
	}
	c.metrics.framesSent.Inc()
	if cmd.Callback != nil {
		cmd.Callback(session.OutcomeAck, nil)
	}
	return nil
}

func (c *Core) sendAckOnce(body []byte, cmd Command) error {
	seq := c.sessions.NextSequence()
	frame, err := c.codec.Encode(wire.EncodeParams{
		SessionID: wire.SessionAckOnce,
		Sequence:  seq,
		Encrypt:   cmd.Encrypt,
		Payload:   body,
	})
	if err != nil {
		return err
	}
	ext, err := c.arena.Alloc(len(frame))
	if err != nil {
		return err
	}
	buf, err := c.arena.Bytes(ext)
	if err != nil {
		return err
	}
	copy(buf, frame)
	sendErr := c.pipe.Send(buf)
	if err := c.arena.Free(ext); err != nil {
		c.logger.Printf("link: freeing ack-once extent: %v", err)
	}
	if sendErr != nil {
		return sendErr
	}
	c.metrics.framesSent.Inc()
	return nil
}

func (c *Core) sendReliable(body []byte, cmd Command) error {
	id, ok := c.sessions.FindFreeID()
	if !ok {
		return session.ErrBusy
	}
	seq := c.sessions.NextSequence()
	frame, err := c.codec.Encode(wire.EncodeParams{
		SessionID: id,
		Sequence:  seq,
		Encrypt:   cmd.Encrypt,
		Payload:   body,
	})
	if err != nil {
		return err
	}
	ext, err := c.arena.Alloc(len(frame))
	if err != nil {
		return err
	}
	buf, err := c.arena.Bytes(ext)
	if err != nil {
		c.arena.Free(ext)
		return err
	}
	copy(buf, frame)

	retries := DefaultRetries
	if cmd.Retries != nil {
		retries = *cmd.Retries
	}
	timeout := cmd.TimeoutMillis
	if timeout == 0 {
		timeout = DefaultTimeoutMillis
	}

	if _, err := c.sessions.Alloc(ext, seq, timeout, retries, cmd.Callback); err != nil {
		c.arena.Free(ext)
		return err
	}
	sess, _ := c.sessions.Get(id)
	sess.LastSendMillis = c.pipe.Millis()

	if err := c.pipe.Send(buf); err != nil {
		c.sessions.Free(id)
		c.arena.Free(ext)
		return err
	}
	c.metrics.framesSent.Inc()
	return nil
}

// sendAckFrame encodes and transmits an ack frame reusing sessionID and
// sequence, caching the result for duplicate-request replay when the
// session id falls in the reliable pool (§4.6).
func (c *Core) sendAckFrame(sessionID uint8, sequence uint16, payload []byte) error {
	frame, err := c.codec.Encode(wire.EncodeParams{
		SessionID: sessionID,
		AckFlag:   true,
		Sequence:  sequence,
		Payload:   payload,
	})
	if err != nil {
		return err
	}
	ext, err := c.arena.Alloc(len(frame))
	if err != nil {
		return err
	}
	buf, err := c.arena.Bytes(ext)
	if err != nil {
		c.arena.Free(ext)
		return err
	}
	copy(buf, frame)

	if err := c.pipe.Send(buf); err != nil {
		c.arena.Free(ext)
		return err
	}
	c.metrics.framesSent.Inc()

	if sessionID >= session.PoolLo && sessionID <= session.PoolHi {
		c.acks.Store(sessionID, ext, sequence, func(id arena.ExtentID) {
			if err := c.arena.Free(id); err != nil {
				c.logger.Printf("link: freeing superseded ack extent: %v", err)
			}
		})
	} else if err := c.arena.Free(ext); err != nil {
		c.logger.Printf("link: freeing ack extent: %v", err)
	}
	return nil
}

// replayExtent retransmits a previously cached ack's raw bytes verbatim.
func (c *Core) replayExtent(ext arena.ExtentID) error {
	buf, err := c.arena.Bytes(ext)
	if err != nil {
		return err
	}
	if err := c.pipe.Send(buf); err != nil {
		return err
	}
	c.metrics.framesSent.Inc()
	return nil
}

func (c *Core) onFrame(h wire.Header, payload []byte) {
	before := c.dispatch.UnexpectedAckCount()
	c.dispatch.Dispatch(h, payload)
	if h.AckFlag && c.dispatch.UnexpectedAckCount() == before {
		c.metrics.framesAcked.Inc()
	}
	if h.AckFlag && c.dispatch.UnexpectedAckCount() != before {
		c.metrics.unexpectedAck.Inc()
	}
}

// FeedBytes pushes raw inbound bytes straight into the deframer, for
// embedders that run their own read loop (e.g. a UART ISR) instead of
// letting ReadPoll pull from the BytePipe.
func (c *Core) FeedBytes(data []byte) {
	c.pipe.Lock()
	defer c.pipe.Unlock()
	c.frame.Feed(data)
	c.metrics.resyncs.Set(float64(c.frame.ResyncCount()))
}

// FeedByte is FeedBytes for a single byte.
func (c *Core) FeedByte(b byte) { c.FeedBytes([]byte{b}) }

// ReadPoll drains whatever the BytePipe has buffered into the deframer.
// Call it as often as the transport can produce bytes; it never blocks
// beyond one BytePipe.Read call.
func (c *Core) ReadPoll() error {
	buf := make([]byte, 256)
	c.pipe.Lock()
	n, err := c.pipe.Read(buf)
	c.pipe.Unlock()
	if n > 0 {
		c.FeedBytes(buf[:n])
	}
	return err
}

// SendPoll drives reliable-session retry and timeout bookkeeping. Call it
// at a steady rate (the original Onboard SDK polls at 100Hz); sessions
// whose deadline has elapsed either retransmit their stored frame or, once
// RetriesLeft is exhausted, terminate with OutcomeTimeout.
func (c *Core) SendPoll() {
	c.pipe.Lock()
	defer c.pipe.Unlock()

	now := c.pipe.Millis()
	var expired []uint8
	c.sessions.ForEachInUse(func(s *session.ReliableSession) {
		if now-s.LastSendMillis < s.TimeoutMillis {
			return
		}
		if s.RetriesLeft <= 0 {
			expired = append(expired, s.ID)
			return
		}
		buf, err := c.arena.Bytes(s.Extent)
		if err != nil {
			c.logger.Printf("link: retry for session %d: %v", s.ID, err)
			expired = append(expired, s.ID)
			return
		}
		if err := c.pipe.Send(buf); err != nil {
			c.logger.Printf("link: retry send for session %d: %v", s.ID, err)
			return
		}
		c.metrics.framesSent.Inc()
		s.RetriesLeft--
		s.LastSendMillis = now
	})

	for _, id := range expired {
		sess, ok := c.sessions.Get(id)
		if !ok {
			continue
		}
		cb := sess.Callback
		ext := sess.Extent
		c.sessions.Free(id)
		if err := c.arena.Free(ext); err != nil {
			c.logger.Printf("link: freeing timed-out session %d extent: %v", id, err)
		}
		c.metrics.framesTimeout.Inc()
		if cb != nil {
			cb(session.OutcomeTimeout, nil)
		}
	}
}

// Shutdown releases every pending reliable session's extent and invokes
// its callback exactly once with OutcomeCancelled. The Core must not be
// used for further sends afterwards.
func (c *Core) Shutdown() {
	c.pipe.Lock()
	defer c.pipe.Unlock()

	if c.shutdown {
		return
	}
	c.shutdown = true

	var pending []uint8
	c.sessions.ForEachInUse(func(s *session.ReliableSession) { pending = append(pending, s.ID) })
	for _, id := range pending {
		sess, ok := c.sessions.Get(id)
		if !ok {
			continue
		}
		cb := sess.Callback
		ext := sess.Extent
		c.sessions.Free(id)
		if err := c.arena.Free(ext); err != nil {
			c.logger.Printf("link: freeing cancelled session %d extent: %v", id, err)
		}
		if cb != nil {
			cb(session.OutcomeCancelled, nil)
		}
	}
}
