package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onboardlink/sdk/pkg/arena"
	"github.com/onboardlink/sdk/pkg/session"
	"github.com/onboardlink/sdk/pkg/wire"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *session.Table, *arena.Arena) {
	t.Helper()
	a := arena.New(4096, arena.DefaultTableSize)
	tbl := session.NewTable()
	acks := session.NewAckCache()
	reg := NewRegistry()
	d := New(reg, tbl, acks, a, func(sessionID uint8, sequence uint16, payload []byte) error {
		return nil
	}, func(arena.ExtentID) error { return nil }, nil)
	return d, tbl, a
}

func TestDispatchAckResolvesPendingSession(t *testing.T) {
	d, tbl, a := newTestDispatcher(t)
	ext, err := a.Alloc(16)
	require.NoError(t, err)

	var got session.Outcome
	var gotPayload []byte
	id, err := tbl.Alloc(ext, 100, 50, 3, func(outcome session.Outcome, payload []byte) {
		got = outcome
		gotPayload = payload
	})
	require.NoError(t, err)

	d.Dispatch(wire.Header{AckFlag: true, SessionID: id, Sequence: 100}, []byte("ok"))

	require.Equal(t, session.OutcomeAck, got)
	require.Equal(t, []byte("ok"), gotPayload)
	_, ok := tbl.Get(id)
	require.False(t, ok, "session should be freed after ack")
}

func TestDispatchAckMismatchedSequenceDropped(t *testing.T) {
	d, tbl, a := newTestDispatcher(t)
	ext, err := a.Alloc(16)
	require.NoError(t, err)

	var called bool
	id, err := tbl.Alloc(ext, 100, 50, 3, func(session.Outcome, []byte) { called = true })
	require.NoError(t, err)

	d.Dispatch(wire.Header{AckFlag: true, SessionID: id, Sequence: 999}, []byte("nope"))

	require.False(t, called)
	require.Equal(t, 1, d.UnexpectedAckCount())
	_, ok := tbl.Get(id)
	require.True(t, ok, "session should remain pending after a mismatched ack")
}

func TestDispatchAckForUnknownSessionCounted(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	d.Dispatch(wire.Header{AckFlag: true, SessionID: 5, Sequence: 1}, []byte("late"))
	require.Equal(t, 1, d.UnexpectedAckCount())
}

func TestDispatchBroadcastBypassesHandlerRegistry(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	var got []byte
	d.registry.SetBroadcastHandler(func(payload []byte) { got = payload })

	d.Dispatch(wire.Header{SessionID: 1, Sequence: 1}, []byte{BroadcastCmdSet, 0x00, 'x', 'y'})
	require.Equal(t, []byte("xy"), got)
}

func TestDispatchRequestInvokesRegisteredHandler(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	var gotReq *Request
	d.registry.Register(0x01, 0x02, func(req *Request) { gotReq = req })

	d.Dispatch(wire.Header{SessionID: 3, Sequence: 7}, []byte{0x01, 0x02, 'p'})

	require.NotNil(t, gotReq)
	require.Equal(t, uint8(0x01), gotReq.CmdSet)
	require.Equal(t, uint8(0x02), gotReq.CmdID)
	require.Equal(t, []byte("p"), gotReq.Payload)
}

func TestDispatchRequestReplaysCachedAckOnDuplicate(t *testing.T) {
	d, _, a := newTestDispatcher(t)
	ext, err := a.Alloc(8)
	require.NoError(t, err)
	d.acks.Store(5, ext, 42, nil)

	var replayed arena.ExtentID
	d.replay = func(id arena.ExtentID) error { replayed = id; return nil }

	handlerCalled := false
	d.registry.Register(0x01, 0x02, func(req *Request) { handlerCalled = true })

	d.Dispatch(wire.Header{SessionID: 5, Sequence: 42}, []byte{0x01, 0x02})

	require.Equal(t, ext, replayed)
	require.False(t, handlerCalled, "duplicate request should replay, not re-invoke the handler")
}

func TestDispatchRequestDropsUnregisteredCommand(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	require.NotPanics(t, func() {
		d.Dispatch(wire.Header{SessionID: 1}, []byte{0x99, 0x01})
	})
}
