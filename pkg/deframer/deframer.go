// Package deframer turns an unaligned, possibly lossy byte stream into a
// sequence of verified wire.Frames, re-synchronising on corruption without
// discarding bytes that may hold the start of the next real frame (§4.2).
package deframer

import (
	"bytes"
	"log"

	"github.com/onboardlink/sdk/pkg/wire"
)

// BufferSize caps how many undelivered bytes the deframer will hold while
// hunting for a valid frame boundary.
const BufferSize = 4096

// FrameHandler receives a verified, decoded frame.
type FrameHandler func(wire.Header, []byte)

// Deframer is the streaming byte-oriented frame boundary finder.
type Deframer struct {
	codec   *wire.Codec
	onFrame FrameHandler
	logger  *log.Logger

	buf []byte

	resyncCount int
	framesCount int
}

// New creates a Deframer that decodes with codec and delivers verified
// frames to onFrame.
func New(codec *wire.Codec, onFrame FrameHandler, logger *log.Logger) *Deframer {
	if logger == nil {
		logger = log.Default()
	}
	return &Deframer{
		codec:   codec,
		onFrame: onFrame,
		logger:  logger,
		buf:     make([]byte, 0, BufferSize),
	}
}

// ResyncCount returns how many times the deframer has discarded a corrupt
// or truncated candidate frame and re-sought the magic byte. Deframer
// errors are never surfaced to callers (§7); this counter is the only
// visibility into them.
func (d *Deframer) ResyncCount() int { return d.resyncCount }

// FramesEmitted returns how many frames have been successfully delivered.
func (d *Deframer) FramesEmitted() int { return d.framesCount }

// Feed appends data to the internal buffer and processes as many complete
// frames as are available.
func (d *Deframer) Feed(data []byte) {
	if len(data) == 0 {
		return
	}
	d.buf = append(d.buf, data...)
	if len(d.buf) > BufferSize {
		// Seeking state (no magic found yet) drifted past the budget;
		// drop everything and start clean rather than grow unbounded.
		if bytes.IndexByte(d.buf, wire.Magic) == -1 {
			d.buf = d.buf[:0]
		}
	}
	d.process()
}

// FeedByte feeds a single byte, for embedders that can only deliver bytes
// one at a time (e.g. from an ISR via a direct byte handler).
func (d *Deframer) FeedByte(b byte) {
	d.Feed([]byte{b})
}

func (d *Deframer) process() {
	for {
		if len(d.buf) == 0 {
			return
		}
		if d.buf[0] != wire.Magic {
			idx := bytes.IndexByte(d.buf, wire.Magic)
			if idx == -1 {
				d.buf = d.buf[:0]
				return
			}
			d.buf = d.buf[idx:]
			continue
		}

		if len(d.buf) < wire.HeaderSize {
			return
		}

		h, err := wire.ParseHeaderPrefix(d.buf[:wire.HeaderSize])
		if err != nil {
			d.logger.Printf("deframer: header rejected, resyncing: %v", err)
			d.resync()
			continue
		}

		if len(d.buf) < int(h.Length) {
			return // wait for the rest of the payload and trailer
		}

		frame := d.buf[:h.Length]
		hdr, payload, err := d.codec.Decode(frame)
		if err != nil {
			d.logger.Printf("deframer: payload rejected, resyncing: %v", err)
			d.resync()
			continue
		}

		d.consume(int(h.Length))
		d.framesCount++
		if d.onFrame != nil {
			d.onFrame(hdr, payload)
		}
	}
}

// resync drops the leading (failed) candidate's sync byte and rescans the
// still-buffered bytes for the next magic byte, rather than flushing the
// whole region: a truncated or corrupted frame's tail may legitimately
// contain the start of the next real frame.
func (d *Deframer) resync() {
	d.resyncCount++
	if len(d.buf) == 0 {
		return
	}
	rest := d.buf[1:]
	idx := bytes.IndexByte(rest, wire.Magic)
	if idx == -1 {
		d.buf = d.buf[:0]
		return
	}
	d.consumeFrom(rest, idx)
}

func (d *Deframer) consume(n int) {
	remaining := len(d.buf) - n
	copy(d.buf, d.buf[n:])
	d.buf = d.buf[:remaining]
}

func (d *Deframer) consumeFrom(rest []byte, idx int) {
	remaining := len(rest) - idx
	copy(d.buf, rest[idx:])
	d.buf = d.buf[:remaining]
}
