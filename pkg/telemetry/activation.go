package telemetry

import (
	"log"

	"github.com/onboardlink/sdk/pkg/dispatch"
	"github.com/onboardlink/sdk/pkg/link"
)

// ActivationCmdSet and ActivationCmdID are the well-known request the peer
// sends to hand over the 16-byte AES-128 key that subsequent encrypted
// frames use, mirroring the Onboard SDK's activation handshake (the
// original Linker's setKey, invoked once activation succeeds).
const (
	ActivationCmdSet = 0x00
	ActivationCmdID  = 0x01
)

const (
	activationStatusOK   = 0x00
	activationStatusFail = 0x01
)

// Activator installs ActivationCmdSet/ActivationCmdID as a handler that
// installs whatever key the peer sends into the core, acking success or
// failure back on the same session.
type Activator struct {
	core   *link.Core
	logger *log.Logger
}

// NewActivator returns an Activator bound to core.
func NewActivator(core *link.Core, logger *log.Logger) *Activator {
	if logger == nil {
		logger = log.Default()
	}
	return &Activator{core: core, logger: logger}
}

// Register binds the activation handler on core. Call once during startup,
// before the first ReadPoll.
func (a *Activator) Register() {
	a.core.RegisterHandler(ActivationCmdSet, ActivationCmdID, a.handle)
}

func (a *Activator) handle(req *dispatch.Request) {
	if err := a.core.SetKey(req.Payload); err != nil {
		a.logger.Printf("telemetry: activation key rejected: %v", err)
		if err := req.Ack([]byte{activationStatusFail}); err != nil {
			a.logger.Printf("telemetry: acking failed activation: %v", err)
		}
		return
	}
	if err := req.Ack([]byte{activationStatusOK}); err != nil {
		a.logger.Printf("telemetry: acking activation: %v", err)
	}
}
