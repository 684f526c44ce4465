package telemetry

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/aquaguard/aquaguard-go/internal/errors"
)

// BlockSize is the cipher block size in bytes.
const BlockSize = 16

// DecryptCTR decrypts hex-encoded ciphertext with the device stream cipher.
// The keystream for each block is the key repeated to block length XORed with
// the current counter block; the counter starts as the 8-byte little-endian
// nonce followed by 8 zero bytes and increments little-endian with carry
// across the full 16 bytes. The cipher is symmetric, so this doubles as the
// encrypt routine for the simulator.
func DecryptCTR(cipherHex string, nonce uint64, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, errors.Newf("empty cipher key").
			Component("telemetry").
			Category(errors.CategoryDecryption).
			Build()
	}

	ciphertext, err := hex.DecodeString(cipherHex)
	if err != nil {
		return nil, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryDecryption).
			Context("detail", "ciphertext is not valid hex").
			Build()
	}

	counter := make([]byte, BlockSize)
	binary.LittleEndian.PutUint64(counter[:8], nonce)

	plaintext := make([]byte, len(ciphertext))
	for offset := 0; offset < len(ciphertext); offset += BlockSize {
		end := offset + BlockSize
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		for i := offset; i < end; i++ {
			ks := key[(i-offset)%len(key)] ^ counter[i-offset]
			plaintext[i] = ciphertext[i] ^ ks
		}
		incrementCounter(counter)
	}
	return plaintext, nil
}

// EncryptCTR is the inverse of DecryptCTR, returning hex-encoded ciphertext.
func EncryptCTR(plaintext []byte, nonce uint64, key []byte) (string, error) {
	// XOR keystream ciphers are their own inverse.
	out, err := DecryptCTR(hex.EncodeToString(plaintext), nonce, key)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(out), nil
}

// incrementCounter adds one to the counter treated as a little-endian
// integer, carrying across all 16 bytes. An all-0xFF counter wraps to zero.
func incrementCounter(counter []byte) {
	for i := 0; i < len(counter); i++ {
		counter[i]++
		if counter[i] != 0 {
			return
		}
	}
}
