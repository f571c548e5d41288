package dispatch

import (
	"log"

	"github.com/onboardlink/sdk/pkg/arena"
	"github.com/onboardlink/sdk/pkg/session"
	"github.com/onboardlink/sdk/pkg/wire"
)

// Dispatcher routes a verified inbound frame to a pending reliable session
// (ack path) or a registered handler (request path). It is not internally
// synchronised; the onboard link core serialises calls into it through the
// single coarse mutex described in §5.
type Dispatcher struct {
	registry *Registry
	sessions *session.Table
	acks     *session.AckCache
	arena    *arena.Arena
	logger   *log.Logger

	// sendAck re-encodes and transmits an ack frame reusing sessionID and
	// sequence; for a session id in the reliable pool it also stores the
	// result in the ack cache for replay.
	sendAck func(sessionID uint8, sequence uint16, payload []byte) error
	// replay retransmits the raw bytes of a previously cached extent.
	replay func(extent arena.ExtentID) error

	unexpectedAckCount int
}

// New builds a Dispatcher. sendAck and replay are supplied by the core,
// which owns the codec and byte pipe the dispatcher itself does not touch.
func New(
	registry *Registry,
	sessions *session.Table,
	acks *session.AckCache,
	arena *arena.Arena,
	sendAck func(sessionID uint8, sequence uint16, payload []byte) error,
	replay func(extent arena.ExtentID) error,
	logger *log.Logger,
) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		registry: registry,
		sessions: sessions,
		acks:     acks,
		arena:    arena,
		sendAck:  sendAck,
		replay:   replay,
		logger:   logger,
	}
}

// UnexpectedAckCount returns how many ack frames were dropped for
// referring to an unknown session or a mismatched sequence number (§7's
// UnexpectedAck, counted but never surfaced as an error).
func (d *Dispatcher) UnexpectedAckCount() int { return d.unexpectedAckCount }

// Dispatch routes one verified frame.
func (d *Dispatcher) Dispatch(h wire.Header, payload []byte) {
	if h.AckFlag {
		d.dispatchAck(h, payload)
		return
	}
	d.dispatchRequest(h, payload)
}

func (d *Dispatcher) dispatchAck(h wire.Header, payload []byte) {
	if h.SessionID < session.PoolLo || h.SessionID > session.PoolHi {
		d.unexpectedAckCount++
		return
	}
	sess, ok := d.sessions.Get(h.SessionID)
	if !ok {
		d.unexpectedAckCount++
		return
	}
	if sess.Sequence != h.Sequence {
		d.unexpectedAckCount++
		return
	}

	cb := sess.Callback
	extent := sess.Extent
	d.sessions.Free(h.SessionID)
	if err := d.arena.Free(extent); err != nil {
		d.logger.Printf("dispatch: freeing session %d extent: %v", h.SessionID, err)
	}
	if cb != nil {
		cb(session.OutcomeAck, payload)
	}
}

func (d *Dispatcher) dispatchRequest(h wire.Header, payload []byte) {
	if len(payload) < 2 {
		d.logger.Printf("dispatch: request payload too short to carry (cmd set, cmd id): %d bytes", len(payload))
		return
	}
	cmdSet, cmdID := payload[0], payload[1]
	body := payload[2:]

	if cmdSet == BroadcastCmdSet {
		if d.registry.broadcast != nil {
			d.registry.broadcast(body)
		}
		return
	}
	if cmdSet == TransparentCmdSet {
		if d.registry.transparent != nil {
			d.registry.transparent(body)
		}
		return
	}

	if h.SessionID >= session.PoolLo && h.SessionID <= session.PoolHi {
		if ext, ok := d.acks.Lookup(h.SessionID, h.Sequence); ok {
			if err := d.replay(ext); err != nil {
				d.logger.Printf("dispatch: replaying cached ack for session %d: %v", h.SessionID, err)
			}
			return
		}
	}

	fn, ok := d.registry.Lookup(cmdSet, cmdID)
	if !ok {
		return
	}

	req := &Request{
		CmdSet:    cmdSet,
		CmdID:     cmdID,
		SessionID: h.SessionID,
		Sequence:  h.Sequence,
		Payload:   body,
		ack: func(respPayload []byte) error {
			return d.sendAck(h.SessionID, h.Sequence, respPayload)
		},
	}
	fn(req)
}
