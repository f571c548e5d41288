// Package dispatch routes verified inbound frames to either a waiting
// reliable session (the ack path) or a registered command handler (the
// request path), per §4.6 of the onboard link spec.
package dispatch

// BroadcastCmdSet is the well-known command set the core recognises
// without any handler registration: broadcast telemetry, delivered to the
// registered broadcast handler with no acknowledgement.
const BroadcastCmdSet = 0x02

// TransparentCmdSet is the other well-known push channel, for payloads the
// domain layer wants relayed verbatim without a (cmd set, cmd id) handler
// lookup. Not part of the documented wire contract; kept as an addressable
// constant so a domain layer can opt into it without the core inventing a
// handler for an unregistered cmd set.
const TransparentCmdSet = 0x03

// Request is handed to a registered handler on the request path. It
// carries an Ack method bound to the originating session id and sequence
// number, per §4.6's "may use to return an ack via ack(req_id, bytes)".
type Request struct {
	CmdSet    uint8
	CmdID     uint8
	SessionID uint8
	Sequence  uint16
	Payload   []byte

	ack func(payload []byte) error
}

// Ack replies to the request, reusing its session id and sequence number.
func (r *Request) Ack(payload []byte) error {
	return r.ack(payload)
}

// HandlerFunc handles one inbound request-path command.
type HandlerFunc func(req *Request)

// BroadcastFunc handles push-channel payloads (broadcast or transparent).
type BroadcastFunc func(payload []byte)

type handlerKey struct {
	cmdSet uint8
	cmdID  uint8
}

// Registry binds (cmd set, cmd id) pairs to handler functions, plus the
// two well-known push-channel handlers.
type Registry struct {
	handlers    map[handlerKey]HandlerFunc
	broadcast   BroadcastFunc
	transparent BroadcastFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[handlerKey]HandlerFunc)}
}

// Register binds fn to (cmdSet, cmdID). A later registration for the same
// pair replaces the earlier one.
func (r *Registry) Register(cmdSet, cmdID uint8, fn HandlerFunc) {
	r.handlers[handlerKey{cmdSet, cmdID}] = fn
}

// Lookup returns the handler bound to (cmdSet, cmdID), if any.
func (r *Registry) Lookup(cmdSet, cmdID uint8) (HandlerFunc, bool) {
	fn, ok := r.handlers[handlerKey{cmdSet, cmdID}]
	return fn, ok
}

// SetBroadcastHandler binds the broadcast push-channel handler.
func (r *Registry) SetBroadcastHandler(fn BroadcastFunc) { r.broadcast = fn }

// SetTransparentHandler binds the transparent push-channel handler.
func (r *Registry) SetTransparentHandler(fn BroadcastFunc) { r.transparent = fn }
