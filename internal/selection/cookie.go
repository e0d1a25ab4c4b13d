package selection

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

var errBadSignature = errors.New("selection cookie signature mismatch")

// sign encodes a payload as base64(payload).hex(hmac-sha256(payload)).
func (b *Bridge) sign(payload []byte) string {
	mac := hmac.New(sha256.New, b.secret)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(payload) + "." + hex.EncodeToString(mac.Sum(nil))
}

// verify checks the signature and returns the payload. A tampered or
// truncated cookie reads as "no selection", never as an error surfaced to
// the shopper.
func (b *Bridge) verify(value string) ([]byte, error) {
	dot := strings.LastIndexByte(value, '.')
	if dot < 0 {
		return nil, errBadSignature
	}
	payload, err := base64.RawURLEncoding.DecodeString(value[:dot])
	if err != nil {
		return nil, errBadSignature
	}
	sig, err := hex.DecodeString(value[dot+1:])
	if err != nil {
		return nil, errBadSignature
	}
	mac := hmac.New(sha256.New, b.secret)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, errBadSignature
	}
	return payload, nil
}
