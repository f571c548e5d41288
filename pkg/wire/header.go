// Package wire implements the on-wire framing for the onboard link
// protocol: header layout, dual CRCs, and the optional ECB cipher.
package wire

import "fmt"

const (
	// Magic is the sync byte every frame begins with.
	Magic byte = 0xAA

	// ProtocolVersion is the only version this codec speaks.
	ProtocolVersion = 1

	// HeaderSize is the fixed preamble length: 10 plaintext bytes plus
	// the 2-byte header CRC.
	HeaderSize = 12

	// headerCRCSpan is how many leading bytes the header CRC covers.
	headerCRCSpan = 10

	// TrailerSize is the trailing frame CRC32.
	TrailerSize = 4

	// MaxFrameSize bounds header+payload+trailer.
	MaxFrameSize = 1024

	// MaxPayloadLength bounds a single frame's payload, encrypted or not.
	MaxPayloadLength = 1007

	// MaxLengthField is the largest value the 10-bit length field can hold.
	MaxLengthField = 1<<10 - 1

	// SessionNoAck and SessionAckOnce are the two reserved session ids;
	// 2..31 is the auto-assigned reliable pool.
	SessionNoAck   = 0
	SessionAckOnce = 1
	SessionPoolLo  = 2
	SessionPoolHi  = 31

	// cipherBlockSize is the ECB block size (AES-128).
	cipherBlockSize = 16
)

// EncryptionType identifies how (if at all) the payload is ciphered.
type EncryptionType uint8

const (
	EncryptionNone EncryptionType = 0
	EncryptionAESECB EncryptionType = 1
)

// Header is the fixed-width preamble of every on-wire frame.
type Header struct {
	Length    uint16 // total frame length: header + payload + trailer
	Version   uint8  // protocol version, 6 bits
	SessionID uint8  // 0-31
	AckFlag   bool
	Enc       EncryptionType
	PadLength uint8 // 0-31, bytes of cipher padding appended to the payload
	Sequence  uint16
	CRC       uint16 // CRC16 over the first 10 bytes
}

func (h Header) String() string {
	return fmt.Sprintf("Header{len=%d ver=%d sid=%d ack=%v enc=%d pad=%d seq=%d crc=%04x}",
		h.Length, h.Version, h.SessionID, h.AckFlag, h.Enc, h.PadLength, h.Sequence, h.CRC)
}

// encodeFields writes the first 10 plaintext bytes of the header (everything
// but the trailing CRC) into dst, which must be at least 10 bytes long.
func (h Header) encodeFields(dst []byte) {
	_ = dst[9]
	dst[0] = Magic

	// A MaxFrameSize (1024-byte) frame wraps to 0 in the 10-bit length
	// field; decodeFields maps 0 back to MaxFrameSize.
	lenVer := uint16(h.Length&MaxLengthField) | uint16(h.Version&0x3F)<<10
	dst[1] = byte(lenVer)
	dst[2] = byte(lenVer >> 8)

	flags := uint16(h.SessionID&0x1F)
	if h.AckFlag {
		flags |= 1 << 5
	}
	flags |= uint16(h.Enc&0x7) << 6
	flags |= uint16(h.PadLength&0x1F) << 9
	dst[3] = byte(flags)
	dst[4] = byte(flags >> 8)

	dst[5] = byte(h.Sequence)
	dst[6] = byte(h.Sequence >> 8)

	dst[7], dst[8], dst[9] = 0, 0, 0
}

// decodeFields parses the first 10 plaintext bytes into a Header, leaving
// CRC unset (the caller fills it in separately from bytes 10-11).
func decodeFields(src []byte) (Header, error) {
	if len(src) < headerCRCSpan {
		return Header{}, fmt.Errorf("wire: short header: %d bytes", len(src))
	}
	if src[0] != Magic {
		return Header{}, fmt.Errorf("wire: bad magic byte 0x%02x", src[0])
	}

	lenVer := uint16(src[1]) | uint16(src[2])<<8
	flags := uint16(src[3]) | uint16(src[4])<<8
	seq := uint16(src[5]) | uint16(src[6])<<8

	length := lenVer & MaxLengthField
	if length == 0 {
		// No valid frame is shorter than header plus trailer, so 0 carries
		// the one length the 10-bit field cannot hold.
		length = MaxFrameSize
	}

	return Header{
		Length:    length,
		Version:   uint8(lenVer >> 10),
		SessionID: uint8(flags & 0x1F),
		AckFlag:   flags&(1<<5) != 0,
		Enc:       EncryptionType((flags >> 6) & 0x7),
		PadLength: uint8((flags >> 9) & 0x1F),
		Sequence:  seq,
	}, nil
}
