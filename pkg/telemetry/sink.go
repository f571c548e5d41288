// Package telemetry adapts the onboard link's push channels (broadcast and
// transparent) to a domain backend: CBOR-decoded broadcast frames are
// republished over Redis pub/sub, the same way the teacher's service
// package turns USOCK payloads into Redis hash writes and publishes.
package telemetry

import (
	"fmt"
	"log"

	"github.com/fxamacker/cbor/v2"
)

// publisher is the slice of *onboardredis.Client's API Sink depends on.
// Accepting the interface rather than the concrete client keeps this
// package testable without a live Redis server.
type publisher interface {
	WriteAndPublishString(key, field, value string) error
	Publish(channel string, message string) error
}

// Sink forwards decoded broadcast telemetry into Redis: one hash field per
// top-level CBOR key, written and published together so subscribers and
// polling readers both see the update.
type Sink struct {
	client  publisher
	hashKey string
	logger  *log.Logger
}

// NewSink returns a Sink that writes decoded fields into the Redis hash
// named hashKey and publishes each write on the same key's channel. client
// is typically an *onboardredis.Client.
func NewSink(client publisher, hashKey string, logger *log.Logger) *Sink {
	if logger == nil {
		logger = log.Default()
	}
	return &Sink{client: client, hashKey: hashKey, logger: logger}
}

// HandleBroadcast is a dispatch.BroadcastFunc: decode the CBOR-encoded
// telemetry map and write+publish every field. Malformed payloads are
// logged and dropped, matching the core's own policy of never surfacing
// decode failures past the link layer.
func (s *Sink) HandleBroadcast(payload []byte) {
	var fields map[string]interface{}
	if err := cbor.Unmarshal(payload, &fields); err != nil {
		s.logger.Printf("telemetry: decoding broadcast payload: %v", err)
		return
	}
	for field, value := range fields {
		if err := s.client.WriteAndPublishString(s.hashKey, field, fmt.Sprintf("%v", value)); err != nil {
			s.logger.Printf("telemetry: publishing %s.%s: %v", s.hashKey, field, err)
		}
	}
}

// HandleTransparent is a dispatch.BroadcastFunc for the transparent
// push channel: payloads here are opaque to the protocol, so they're
// published verbatim as one message on the "<hashKey>:transparent"
// channel, neither decoded as CBOR nor written to the hash.
func (s *Sink) HandleTransparent(payload []byte) {
	if err := s.client.Publish(s.hashKey+":transparent", string(payload)); err != nil {
		s.logger.Printf("telemetry: publishing transparent payload: %v", err)
	}
}
