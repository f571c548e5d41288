package wire

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoKey is returned when an encrypted encode is requested before a key
// has been installed with SetKey.
var ErrNoKey = errors.New("wire: no encryption key installed")

// ErrPayloadTooLarge is returned when a payload exceeds MaxPayloadLength.
var ErrPayloadTooLarge = errors.New("wire: payload exceeds maximum length")

// Codec encodes logical requests into on-wire frames and parses the
// reverse. It owns the symmetric key and is safe for concurrent use.
type Codec struct {
	mu     sync.Mutex
	cipher *ecbCipher
}

// NewCodec returns a Codec with no key installed; encrypted encode/decode
// calls fail with ErrNoKey until SetKey is called.
func NewCodec() *Codec {
	return &Codec{}
}

// SetKey installs the symmetric key used for ECB encryption. Passing nil
// clears it.
func (c *Codec) SetKey(key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == nil {
		c.cipher = nil
		return nil
	}
	ec, err := newECBCipher(key)
	if err != nil {
		return err
	}
	c.cipher = ec
	return nil
}

// HasKey reports whether a key has been installed.
func (c *Codec) HasKey() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cipher != nil
}

// EncodeParams describes a logical outbound frame.
type EncodeParams struct {
	SessionID uint8
	AckFlag   bool
	Sequence  uint16
	Encrypt   bool
	Payload   []byte
}

// Encode serialises params into a complete on-wire frame: header, payload
// (padded and optionally ECB-encrypted), and trailing CRC32.
func (c *Codec) Encode(p EncodeParams) ([]byte, error) {
	if len(p.Payload) > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(p.Payload), MaxPayloadLength)
	}

	pad := 0
	if p.Encrypt {
		pad = padLength(len(p.Payload))
	}
	payloadLen := len(p.Payload) + pad
	total := HeaderSize + payloadLen + TrailerSize
	if total > MaxFrameSize {
		return nil, fmt.Errorf("%w: encoded frame %d bytes exceeds MaxFrameSize %d", ErrPayloadTooLarge, total, MaxFrameSize)
	}

	var cipher *ecbCipher
	if p.Encrypt {
		c.mu.Lock()
		cipher = c.cipher
		c.mu.Unlock()
		if cipher == nil {
			return nil, ErrNoKey
		}
	}

	buf := make([]byte, total)

	h := Header{
		Length:    uint16(total),
		Version:   ProtocolVersion,
		SessionID: p.SessionID,
		AckFlag:   p.AckFlag,
		PadLength: uint8(pad),
		Sequence:  p.Sequence,
	}
	if p.Encrypt {
		h.Enc = EncryptionAESECB
	}
	h.encodeFields(buf[:headerCRCSpan])
	h.CRC = crc16(buf[:headerCRCSpan])
	buf[10] = byte(h.CRC)
	buf[11] = byte(h.CRC >> 8)

	payloadStart := HeaderSize
	copy(buf[payloadStart:], p.Payload)
	// remaining pad bytes are already zero from make()

	if p.Encrypt {
		if err := cipher.cryptBlocks(buf[payloadStart:payloadStart+payloadLen], true); err != nil {
			return nil, err
		}
	}

	trailerCRC := crc32Checksum(buf[:payloadStart+payloadLen])
	trailerOff := payloadStart + payloadLen
	buf[trailerOff] = byte(trailerCRC)
	buf[trailerOff+1] = byte(trailerCRC >> 8)
	buf[trailerOff+2] = byte(trailerCRC >> 16)
	buf[trailerOff+3] = byte(trailerCRC >> 24)

	return buf, nil
}

// ParseHeaderPrefix validates and parses the fixed 12-byte header prefix
// (magic, version, header CRC) without requiring the rest of the frame to
// be present yet. It is the building block the stream deframer uses to
// learn a candidate frame's declared Length before the payload has
// arrived.
func ParseHeaderPrefix(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("wire: short header prefix: %d bytes", len(buf))
	}
	h, err := decodeFields(buf[:headerCRCSpan])
	if err != nil {
		return Header{}, err
	}
	h.CRC = uint16(buf[10]) | uint16(buf[11])<<8

	gotHeaderCRC := crc16(buf[:headerCRCSpan])
	if gotHeaderCRC != h.CRC {
		return Header{}, fmt.Errorf("wire: header CRC mismatch: got %04x want %04x", gotHeaderCRC, h.CRC)
	}
	if h.Version != ProtocolVersion {
		return Header{}, fmt.Errorf("wire: unsupported protocol version %d", h.Version)
	}
	if int(h.Length) < HeaderSize+TrailerSize || int(h.Length) > MaxFrameSize {
		return Header{}, fmt.Errorf("wire: declared length %d out of range", h.Length)
	}
	return h, nil
}

// Decode parses a byte range believed to hold exactly one frame (including
// trailer). It verifies magic, version, both CRCs, decrypts if flagged, and
// strips declared padding.
func (c *Codec) Decode(frame []byte) (Header, []byte, error) {
	if len(frame) < HeaderSize+TrailerSize {
		return Header{}, nil, fmt.Errorf("wire: frame too short: %d bytes", len(frame))
	}

	h, err := ParseHeaderPrefix(frame[:HeaderSize])
	if err != nil {
		return Header{}, nil, err
	}
	if int(h.Length) != len(frame) {
		return Header{}, nil, fmt.Errorf("wire: declared length %d does not match buffer length %d", h.Length, len(frame))
	}

	payloadLen := int(h.Length) - HeaderSize - TrailerSize
	payloadStart := HeaderSize
	trailerOff := payloadStart + payloadLen

	gotTrailerCRC := crc32Checksum(frame[:trailerOff])
	wantTrailerCRC := uint32(frame[trailerOff]) | uint32(frame[trailerOff+1])<<8 |
		uint32(frame[trailerOff+2])<<16 | uint32(frame[trailerOff+3])<<24
	if gotTrailerCRC != wantTrailerCRC {
		return Header{}, nil, fmt.Errorf("wire: payload CRC mismatch: got %08x want %08x", gotTrailerCRC, wantTrailerCRC)
	}

	payload := make([]byte, payloadLen)
	copy(payload, frame[payloadStart:trailerOff])

	if h.Enc == EncryptionAESECB {
		c.mu.Lock()
		cipher := c.cipher
		c.mu.Unlock()
		if cipher == nil {
			return Header{}, nil, ErrNoKey
		}
		if err := cipher.cryptBlocks(payload, false); err != nil {
			return Header{}, nil, err
		}
		if int(h.PadLength) > len(payload) {
			return Header{}, nil, fmt.Errorf("wire: pad length %d exceeds payload length %d", h.PadLength, len(payload))
		}
		payload = payload[:len(payload)-int(h.PadLength)]
	}

	return h, payload, nil
}
