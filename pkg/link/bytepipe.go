// Package link assembles the wire, arena, session, deframer and dispatch
// packages into the onboard link core: the single object an embedder talks
// to, and the one that serialises every operation through the BytePipe's
// lock (§5's single coarse mutex model).
package link

// BytePipe is the transport the core drives: something that can move raw
// bytes in both directions, report a millisecond clock for retry/timeout
// bookkeeping, and hand out the one lock that serialises every call into
// the core. pkg/transport supplies concrete BytePipes (serial, UDP); tests
// use an in-memory loopback.
type BytePipe interface {
	// Send writes the complete frame. Implementations must not partially
	// write: either the whole frame reaches the wire or an error is
	// returned.
	Send(frame []byte) error
	// Read copies whatever inbound bytes are immediately available into
	// buf and returns how many, without blocking for more. ReadPoll calls
	// this in a loop; embedders that already run their own read loop can
	// ignore it and push bytes straight in with Core.FeedByte/FeedBytes
	// instead.
	Read(buf []byte) (int, error)
	// Millis returns a free-running millisecond clock used for retry and
	// timeout scheduling. It does not need to be wall-clock time.
	Millis() uint32
	// Lock and Unlock serialise all core operations (Send, Ack,
	// SendPoll, ReadPoll, byte ingestion). The core never assumes it is
	// the only possible caller of the underlying transport, so it asks
	// the pipe for the lock rather than owning one itself.
	Lock()
	Unlock()
}
