package session

import "github.com/onboardlink/sdk/pkg/arena"

// AckStatus mirrors the original design's ack slot lifecycle: idle until a
// request arrives, processing while a handler is computing the reply,
// using once a cached ack extent is ready to replay. AckCache itself only
// moves a slot between AckIdle (empty or cleared) and AckUsing (Store);
// nothing in this module sets AckProcessing.
type AckStatus int

const (
	AckIdle AckStatus = iota
	AckProcessing
	AckUsing
)

// AckSlot remembers the last ack sent for a given session id so a
// duplicate request (same session id, same sequence) can be answered by
// replaying the cached frame instead of re-invoking the handler.
type AckSlot struct {
	SessionID uint8
	Status    AckStatus
	Extent    arena.ExtentID
	Sequence  uint16
	Valid     bool
}

// AckCache holds one slot per request session id (1..31).
type AckCache struct {
	slots [PoolHi + 1]AckSlot
}

// NewAckCache returns an empty AckCache.
func NewAckCache() *AckCache {
	return &AckCache{}
}

// Lookup returns the cached extent for sessionID if it holds a valid ack
// whose sequence matches exactly; a mismatched or empty slot misses.
func (c *AckCache) Lookup(sessionID uint8, sequence uint16) (arena.ExtentID, bool) {
	if sessionID == 0 || int(sessionID) > PoolHi {
		return 0, false
	}
	s := &c.slots[sessionID]
	if !s.Valid || s.Sequence != sequence {
		return 0, false
	}
	return s.Extent, true
}

// Store records a fresh ack for sessionID, freeing any extent the slot
// previously held first — the same supersession the original allocACK
// performs before handing out the replacement extent.
func (c *AckCache) Store(sessionID uint8, extent arena.ExtentID, sequence uint16, free func(arena.ExtentID)) {
	if sessionID == 0 || int(sessionID) > PoolHi {
		return
	}
	s := &c.slots[sessionID]
	if s.Valid && free != nil {
		free(s.Extent)
	}
	*s = AckSlot{
		SessionID: sessionID,
		Status:    AckUsing,
		Extent:    extent,
		Sequence:  sequence,
		Valid:     true,
	}
}

// Clear drops sessionID's cached ack, freeing its extent.
func (c *AckCache) Clear(sessionID uint8, free func(arena.ExtentID)) {
	if sessionID == 0 || int(sessionID) > PoolHi {
		return
	}
	s := &c.slots[sessionID]
	if s.Valid && free != nil {
		free(s.Extent)
	}
	*s = AckSlot{}
}
