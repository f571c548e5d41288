package link_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/onboardlink/sdk/pkg/dispatch"
	"github.com/onboardlink/sdk/pkg/link"
	"github.com/onboardlink/sdk/pkg/session"
)

func newTestCore(pipe link.BytePipe) *link.Core {
	return link.New(pipe, link.WithMetricsRegisterer(prometheus.NewRegistry()), link.WithArenaCapacity(2048))
}

func retriesOf(n int) *int { return &n }

func TestSendNoAckFiresCallbackSynchronously(t *testing.T) {
	clock := uint32(0)
	pipeA, _ := newFakePipePair(&clock)
	core := newTestCore(pipeA)

	var outcome session.Outcome
	called := false
	err := core.Send(link.Command{
		Mode:    link.ModeNoAck,
		CmdSet:  0x10,
		CmdID:   0x01,
		Payload: []byte("hi"),
		Callback: func(o session.Outcome, payload []byte) {
			called = true
			outcome = o
		},
	})

	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, session.OutcomeAck, outcome)
}

func TestSendAckOnceNeverInvokesCallback(t *testing.T) {
	clock := uint32(0)
	pipeA, _ := newFakePipePair(&clock)
	core := newTestCore(pipeA)

	called := false
	err := core.Send(link.Command{
		Mode:    link.ModeAckOnce,
		CmdSet:  0x10,
		CmdID:   0x02,
		Payload: []byte("fire-and-forget"),
		Callback: func(session.Outcome, []byte) {
			called = true
		},
	})

	require.NoError(t, err)
	require.False(t, called)
	require.Equal(t, 0, core.UnexpectedAckCount())
}

func TestSendRejectsOversizedPayload(t *testing.T) {
	clock := uint32(0)
	pipeA, _ := newFakePipePair(&clock)
	core := newTestCore(pipeA)

	err := core.Send(link.Command{
		Mode:    link.ModeNoAck,
		Payload: make([]byte, 2000),
	})
	require.ErrorIs(t, err, link.ErrInvalidArgument)
}

func TestReliableRoundTripDeliversAckPayload(t *testing.T) {
	clock := uint32(0)
	pipeA, pipeB := newFakePipePair(&clock)
	coreA := newTestCore(pipeA)
	coreB := newTestCore(pipeB)

	coreB.RegisterHandler(0x01, 0x02, func(req *dispatch.Request) {
		require.Equal(t, []byte("ping"), req.Payload)
		require.NoError(t, req.Ack([]byte("pong")))
	})

	var outcome session.Outcome
	var reply []byte
	err := coreA.Send(link.Command{
		Mode:          link.ModeReliable,
		CmdSet:        0x01,
		CmdID:         0x02,
		Payload:       []byte("ping"),
		Retries:       retriesOf(3),
		TimeoutMillis: 50,
		Callback: func(o session.Outcome, payload []byte) {
			outcome = o
			reply = payload
		},
	})
	require.NoError(t, err)

	require.NoError(t, coreB.ReadPoll())
	require.NoError(t, coreA.ReadPoll())

	require.Equal(t, session.OutcomeAck, outcome)
	require.Equal(t, []byte("pong"), reply)
}

func TestReliableSendRetriesThenTimesOut(t *testing.T) {
	clock := uint32(0)
	pipeA, _ := newFakePipePair(&clock)
	coreA := newTestCore(pipeA)

	var outcome session.Outcome
	called := false
	err := coreA.Send(link.Command{
		Mode:          link.ModeReliable,
		CmdSet:        0x01,
		CmdID:         0x02,
		Retries:       retriesOf(2),
		TimeoutMillis: 50,
		Callback: func(o session.Outcome, _ []byte) {
			called = true
			outcome = o
		},
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		clock += 51
		coreA.SendPoll()
	}

	require.True(t, called)
	require.Equal(t, session.OutcomeTimeout, outcome)
}

func TestDuplicateRequestReplaysCachedAckWithoutReinvokingHandler(t *testing.T) {
	clock := uint32(0)
	pipeA, pipeB := newFakePipePair(&clock)
	coreA := newTestCore(pipeA)
	coreB := newTestCore(pipeB)

	handlerCalls := 0
	coreB.RegisterHandler(0x01, 0x02, func(req *dispatch.Request) {
		handlerCalls++
		require.NoError(t, req.Ack([]byte("pong")))
	})

	err := coreA.Send(link.Command{
		Mode:          link.ModeReliable,
		CmdSet:        0x01,
		CmdID:         0x02,
		Payload:       []byte("ping"),
		Retries:       retriesOf(3),
		TimeoutMillis: 50,
	})
	require.NoError(t, err)
	require.NoError(t, coreB.ReadPoll())
	require.Equal(t, 1, handlerCalls)

	// A never drains B's reply from its own inbox, so from its point of
	// view the ack was lost; once its timeout elapses it retransmits the
	// exact same frame (same session id, same sequence number).
	clock += 51
	coreA.SendPoll()
	require.NoError(t, coreB.ReadPoll())

	require.Equal(t, 1, handlerCalls, "the retried request must replay the cached ack, not re-run the handler")
}

func TestShutdownCancelsPendingReliableSessions(t *testing.T) {
	clock := uint32(0)
	pipeA, _ := newFakePipePair(&clock)
	coreA := newTestCore(pipeA)

	var outcome session.Outcome
	err := coreA.Send(link.Command{
		Mode:          link.ModeReliable,
		CmdSet:        0x01,
		CmdID:         0x02,
		Retries:       retriesOf(3),
		TimeoutMillis: 1000,
		Callback: func(o session.Outcome, _ []byte) {
			outcome = o
		},
	})
	require.NoError(t, err)

	coreA.Shutdown()

	require.Equal(t, session.OutcomeCancelled, outcome)
	require.ErrorIs(t, coreA.Send(link.Command{Mode: link.ModeNoAck}), link.ErrShuttingDown)
}

func TestReliableSendWithZeroRetriesFailsAfterOneTransmission(t *testing.T) {
	clock := uint32(0)
	pipeA, _ := newFakePipePair(&clock)
	coreA := newTestCore(pipeA)

	var outcome session.Outcome
	called := false
	err := coreA.Send(link.Command{
		Mode:          link.ModeReliable,
		CmdSet:        0x01,
		CmdID:         0x02,
		Retries:       retriesOf(0),
		TimeoutMillis: 50,
		Callback: func(o session.Outcome, _ []byte) {
			called = true
			outcome = o
		},
	})
	require.NoError(t, err)

	// A single timeout must exhaust the budget immediately: no retry is
	// transmitted when Retries points at 0.
	clock += 51
	coreA.SendPoll()

	require.True(t, called)
	require.Equal(t, session.OutcomeTimeout, outcome)
}
