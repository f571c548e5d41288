package link

import "github.com/onboardlink/sdk/pkg/session"

// Mode selects which of the three session disciplines (§4.4) a Command
// uses.
type Mode int

const (
	// ModeNoAck fires the frame with session id 0 and returns immediately;
	// the callback (if any) fires synchronously with OutcomeAck.
	ModeNoAck Mode = iota
	// ModeAckOnce uses the reserved session id 1, transmits once, and
	// releases its extent without waiting for a reply.
	ModeAckOnce
	// ModeReliable auto-assigns a session id from the 2..31 pool and
	// retries on a timeout up to Retries times before giving up.
	ModeReliable
)

// Command describes one outbound transmission.
type Command struct {
	Mode    Mode
	CmdSet  uint8
	CmdID   uint8
	Payload []byte
	Encrypt bool

	// Retries and TimeoutMillis only matter for ModeReliable. Retries is a
	// pointer so a caller can express "zero retries" (one transmission,
	// then fail, per §5) distinctly from leaving it unset: nil selects
	// DefaultRetries, a non-nil value (including one pointing at 0) is
	// used exactly as given.
	Retries       *int
	TimeoutMillis uint32

	// Callback receives the terminal outcome. For ModeNoAck it fires once,
	// synchronously inside Send, with OutcomeAck. For ModeAckOnce it never
	// fires (the send is genuinely fire-and-forget). For ModeReliable it
	// fires exactly once: with OutcomeAck from ReadPoll/FeedBytes when the
	// matching ack arrives, with OutcomeTimeout from SendPoll once retries
	// are exhausted, or with OutcomeCancelled from Shutdown.
	Callback session.Callback
}
