package kick

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Webhook delivery headers.
const (
	HeaderEventMessageID        = "Kick-Event-Message-Id"
	HeaderEventSubscriptionID   = "Kick-Event-Subscription-Id"
	HeaderEventSignature        = "Kick-Event-Signature"
	HeaderEventMessageTimestamp = "Kick-Event-Message-Timestamp"
	HeaderEventType             = "Kick-Event-Type"
	HeaderEventVersion          = "Kick-Event-Version"
)

// WebhookEnvelope is one inbound delivery: the signing headers plus the exact
// body bytes as received. Re-serializing the JSON would invalidate the
// signature, so RawBody must come straight off the wire.
type WebhookEnvelope struct {
	MessageID      string
	SubscriptionID string
	SignatureB64   string
	Timestamp      string
	EventType      string
	EventVersion   string
	RawBody        []byte
}

// SignatureVerifier validates webhook envelopes against the cached platform
// signing key.
type SignatureVerifier struct {
	keys *PublicKeyCache
}

func NewSignatureVerifier(keys *PublicKeyCache) *SignatureVerifier {
	return &SignatureVerifier{keys: keys}
}

// SigningString builds the canonical string the platform signed. Field order
// and the "." separator are fixed by the protocol.
func (e *WebhookEnvelope) SigningString() []byte {
	return []byte(e.MessageID + "." + e.Timestamp + "." + string(e.RawBody))
}

// Verify checks the envelope's RSA-SHA256 signature. It returns
// ErrMalformedEnvelope when required fields are missing, ErrSignatureInvalid
// when the cryptographic check fails, and a plain error when the signing key
// could not be fetched at all.
func (v *SignatureVerifier) Verify(ctx context.Context, envelope *WebhookEnvelope) error {
	if envelope.MessageID == "" || envelope.Timestamp == "" || envelope.SignatureB64 == "" || len(envelope.RawBody) == 0 {
		return ErrMalformedEnvelope
	}

	key, err := v.keys.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	signature, err := base64.StdEncoding.DecodeString(envelope.SignatureB64)
	if err != nil {
		return ErrSignatureInvalid
	}

	hashed := sha256.Sum256(envelope.SigningString())
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, hashed[:], signature); err != nil {
		return ErrSignatureInvalid
	}

	return nil
}
