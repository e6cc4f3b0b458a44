package security

import (
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

var ErrChallengeMismatch = errors.New("challenge response does not match")

// ChallengeProof binds a handshake challenge to the device and nonce that
// requested it.
func ChallengeProof(challenge, deviceFingerprint, nonce string) []byte {
	mac := hmac.New(sha256.New, []byte(challenge))
	_, _ = mac.Write([]byte(deviceFingerprint + "|" + nonce))
	return mac.Sum(nil)
}

// SignChallenge is the client half of the handshake: the proof is wrapped
// with the server's ephemeral public key so only the holder of the matching
// private key can check it.
func SignChallenge(serverPublicKeyPEM, challenge, deviceFingerprint, nonce string) (string, error) {
	pub, err := DecodePublicKeyPEM(serverPublicKeyPEM)
	if err != nil {
		return "", err
	}
	ct, err := EncryptOAEP(pub, ChallengeProof(challenge, deviceFingerprint, nonce))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

func VerifyChallenge(key *rsa.PrivateKey, signedChallenge, challenge, deviceFingerprint, nonce string) error {
	raw, err := base64.StdEncoding.DecodeString(signedChallenge)
	if err != nil || len(raw) == 0 {
		return ErrChallengeMismatch
	}
	got, err := DecryptOAEP(key, raw)
	if err != nil {
		return ErrChallengeMismatch
	}
	if !hmac.Equal(got, ChallengeProof(challenge, deviceFingerprint, nonce)) {
		return ErrChallengeMismatch
	}
	return nil
}
