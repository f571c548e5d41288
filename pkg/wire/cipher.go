package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// ecbCipher implements electronic-codebook mode over an AES block cipher.
// crypto/cipher deliberately ships no ECB mode (it leaks plaintext
// structure), but the onboard link peer's fixed-block cipher requires it,
// so it is hand-rolled over crypto/aes the way every Go project bound to a
// legacy ECB peer does.
type ecbCipher struct {
	block cipher.Block
}

func newECBCipher(key []byte) (*ecbCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("wire: bad cipher key: %w", err)
	}
	return &ecbCipher{block: block}, nil
}

// cryptBlocks encrypts or decrypts buf in place, buf must be a multiple of
// the cipher's block size.
func (e *ecbCipher) cryptBlocks(buf []byte, encrypt bool) error {
	bs := e.block.BlockSize()
	if len(buf)%bs != 0 {
		return fmt.Errorf("wire: ciphertext length %d not a multiple of block size %d", len(buf), bs)
	}
	for off := 0; off < len(buf); off += bs {
		block := buf[off : off+bs]
		if encrypt {
			e.block.Encrypt(block, block)
		} else {
			e.block.Decrypt(block, block)
		}
	}
	return nil
}

// padLength returns how many zero bytes must be appended to a payload of
// length n so it is a multiple of the cipher block size.
func padLength(n int) int {
	rem := n % cipherBlockSize
	if rem == 0 {
		return 0
	}
	return cipherBlockSize - rem
}
