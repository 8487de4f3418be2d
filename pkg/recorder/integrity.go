package recorder

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
)

// SignatureExt is appended to a session path to name its signature file.
const SignatureExt = ".sig"

// ErrIntegrity is returned when a session file does not match its signature.
var ErrIntegrity = errors.New("recorder: session signature mismatch: data may have been tampered with")

// CalculateHMAC generates an HMAC for the given data
func CalculateHMAC(data []byte, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyHMAC checks if the HMAC for the given data matches the expected value
func VerifyHMAC(data []byte, key []byte, expectedHMAC string) bool {
	actualHMAC := CalculateHMAC(data, key)
	return hmac.Equal([]byte(actualHMAC), []byte(expectedHMAC))
}

// SignFile writes an HMAC-SHA256 signature of the file at path next to it.
// The signature covers the bytes on disk, compressed or not.
func SignFile(path string, key []byte) error {
	if len(key) == 0 {
		return errors.New("recorder: empty signing key")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("recorder: sign session: %w", err)
	}
	sig := CalculateHMAC(data, key) + "\n"
	if err := os.WriteFile(path+SignatureExt, []byte(sig), 0644); err != nil {
		return fmt.Errorf("recorder: sign session: %w", err)
	}
	return nil
}

// VerifyFile checks the file at path against its signature file.
func VerifyFile(path string, key []byte) error {
	sig, err := os.ReadFile(path + SignatureExt)
	if err != nil {
		return fmt.Errorf("recorder: verify session: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("recorder: verify session: %w", err)
	}
	if !VerifyHMAC(data, key, string(bytes.TrimSpace(sig))) {
		return fmt.Errorf("%s: %w", path, ErrIntegrity)
	}
	return nil
}
