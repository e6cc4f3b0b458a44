package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"time"
)

const FreshnessWindow = 5 * time.Minute

var (
	ErrStaleTimestamp   = errors.New("timestamp outside freshness window")
	ErrInvalidSignature = errors.New("invalid signature")
)

func Sign(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func Verify(data, signature, secret string) bool {
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(data))
	return hmac.Equal(got, mac.Sum(nil))
}

func IsTimestampFresh(ts, now time.Time) bool {
	d := now.Sub(ts)
	if d < 0 {
		d = -d
	}
	return d <= FreshnessWindow
}

type SignedEnvelope struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
}

// RequestSigningInput is the byte layout shared by envelopes and loader
// heartbeats: payload, nonce and the unix millisecond timestamp concatenated.
func RequestSigningInput(payload, nonce string, timestampMillis int64) string {
	return payload + nonce + strconv.FormatInt(timestampMillis, 10)
}

func BuildSignedEnvelope(payload, secret string, now time.Time) (*SignedEnvelope, error) {
	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}
	ts := now.UnixMilli()
	return &SignedEnvelope{
		Payload:   payload,
		Signature: Sign(RequestSigningInput(payload, nonce, ts), secret),
		Nonce:     nonce,
		Timestamp: ts,
	}, nil
}

func VerifySignedEnvelope(env *SignedEnvelope, secret string, now time.Time) error {
	if env == nil {
		return ErrInvalidSignature
	}
	if !IsTimestampFresh(time.UnixMilli(env.Timestamp), now) {
		return ErrStaleTimestamp
	}
	if !Verify(RequestSigningInput(env.Payload, env.Nonce, env.Timestamp), env.Signature, secret) {
		return ErrInvalidSignature
	}
	return nil
}
