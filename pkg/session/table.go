// Package session implements the Request Session table and the per-session
// Ack Cache (§4.4 of the onboard link spec): session id assignment for
// reliable sends, retry/timeout bookkeeping, and duplicate-ack replay.
//
// Table is not internally synchronised; callers serialise access through
// the onboard link core's single coarse mutex (§5).
package session

import (
	"errors"

	"github.com/onboardlink/sdk/pkg/arena"
)

// Outcome is the terminal result delivered to a reliable send's callback.
type Outcome int

const (
	OutcomeAck Outcome = iota
	OutcomeTimeout
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Callback is invoked exactly once when a reliable session terminates.
type Callback func(outcome Outcome, payload []byte)

// ErrBusy is returned when the reliable session pool (ids 2..31) has no
// free slot.
var ErrBusy = errors.New("session: no free session id")

// PoolLo and PoolHi bound the auto-assigned reliable session id range.
const (
	PoolLo = 2
	PoolHi = 31
)

// ReliableSession tracks one outstanding reliable outbound command.
type ReliableSession struct {
	ID             uint8
	InUse          bool
	RetriesLeft    int
	TimeoutMillis  uint32
	LastSendMillis uint32
	Extent         arena.ExtentID
	Sequence       uint16
	Callback       Callback
}

// Table is the Request Session table: the auto-assigned pool of reliable
// session ids 2..31, plus the single global outbound sequence counter.
type Table struct {
	sessions [PoolHi + 1]ReliableSession
	seq      uint16
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{}
}

// NextSequence returns the next sequence number for a brand-new
// transmission. It must be called exactly once per logical command, never
// per retry: retries reuse the session's stored Sequence so the receiver
// can deduplicate.
func (t *Table) NextSequence() uint16 {
	t.seq++
	return t.seq
}

// FindFreeID reports the id Alloc would assign next, without reserving it.
// The onboard link core needs the id before it can encode the outbound
// frame (the session id lives in the header), so it peeks here, builds the
// frame, and only then calls Alloc for the same id. Safe under the core's
// single coarse mutex: nothing else can observe or claim the id in between.
func (t *Table) FindFreeID() (uint8, bool) {
	for id := PoolLo; id <= PoolHi; id++ {
		if !t.sessions[id].InUse {
			return uint8(id), true
		}
	}
	return 0, false
}

// Alloc reserves the first free id in 2..31 and binds it to the given
// extent/sequence/retry/timeout bookkeeping, returning the assigned id.
func (t *Table) Alloc(extent arena.ExtentID, sequence uint16, timeoutMillis uint32, retries int, cb Callback) (uint8, error) {
	for id := PoolLo; id <= PoolHi; id++ {
		if !t.sessions[id].InUse {
			t.sessions[id] = ReliableSession{
				ID:             uint8(id),
				InUse:          true,
				RetriesLeft:    retries,
				TimeoutMillis:  timeoutMillis,
				LastSendMillis: 0,
				Extent:         extent,
				Sequence:       sequence,
				Callback:       cb,
			}
			return uint8(id), nil
		}
	}
	return 0, ErrBusy
}

// Get returns the session bound to id, if any.
func (t *Table) Get(id uint8) (*ReliableSession, bool) {
	if int(id) < PoolLo || int(id) > PoolHi || !t.sessions[id].InUse {
		return nil, false
	}
	return &t.sessions[id], true
}

// Free releases a session. It is a no-op if the id is not in use.
func (t *Table) Free(id uint8) {
	if int(id) < PoolLo || int(id) > PoolHi {
		return
	}
	t.sessions[id] = ReliableSession{}
}

// ForEachInUse invokes fn for every currently in-use reliable session, in
// ascending id order. fn may call Free on the session it was given.
func (t *Table) ForEachInUse(fn func(*ReliableSession)) {
	for id := PoolLo; id <= PoolHi; id++ {
		if t.sessions[id].InUse {
			fn(&t.sessions[id])
		}
	}
}

// InUseCount returns how many reliable sessions are currently allocated.
func (t *Table) InUseCount() int {
	n := 0
	for id := PoolLo; id <= PoolHi; id++ {
		if t.sessions[id].InUse {
			n++
		}
	}
	return n
}
