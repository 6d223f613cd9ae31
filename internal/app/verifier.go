package app

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/transfa/payout-gateway/internal/domain"
)

// SignatureVerifier authenticates webhook bodies with HMAC-SHA256 over the raw bytes.
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier refuses an empty secret: there is no unauthenticated mode.
func NewSignatureVerifier(secret string) (*SignatureVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("shared secret must not be empty")
	}
	return &SignatureVerifier{secret: []byte(secret)}, nil
}

// Verify checks a hex-encoded signature (optionally prefixed with "sha256=") against
// the exact bytes received. It must be called before the body is parsed.
func (v *SignatureVerifier) Verify(body []byte, signature string) error {
	provided := strings.TrimSpace(signature)
	if provided == "" {
		return fmt.Errorf("%w: missing signature header", domain.ErrAuthentication)
	}
	if len(provided) > 7 && strings.EqualFold(provided[:7], "sha256=") {
		provided = provided[7:]
	}

	providedBytes, err := hex.DecodeString(provided)
	if err != nil {
		return fmt.Errorf("%w: signature is not hex encoded", domain.ErrAuthentication)
	}
	if !hmac.Equal(providedBytes, v.sum(body)) {
		return fmt.Errorf("%w: signature mismatch", domain.ErrAuthentication)
	}
	return nil
}

// Sign returns the hex signature a sender would attach to body.
func (v *SignatureVerifier) Sign(body []byte) string {
	return hex.EncodeToString(v.sum(body))
}

func (v *SignatureVerifier) sum(body []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return mac.Sum(nil)
}
