// ABOUTME: Ed25519 device signature verification for gateway pairing
// ABOUTME: Verifies the canonical connect payload against a challenge nonce

package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/chaihq/chai/internal/dedupe"
)

const (
	// SignatureMaxAge bounds how old a signedAt timestamp may be.
	SignatureMaxAge = 5 * time.Minute

	// nonceCacheSize caps the replay cache.
	nonceCacheSize = 10000
)

// Signature errors
var (
	ErrBadPublicKey   = errors.New("invalid public key")
	ErrBadSignature   = errors.New("signature verification failed")
	ErrStaleSignature = errors.New("signature expired")
	ErrNonceReplay    = errors.New("nonce already used")
	ErrNonceMismatch  = errors.New("nonce does not match challenge")
)

// SignaturePayload builds the canonical newline-separated payload a device
// signs when connecting. Scopes are comma-joined.
func SignaturePayload(deviceID, clientID, clientMode, role string, scopes []string, signedAt int64, token, nonce string) string {
	return strings.Join([]string{
		deviceID,
		clientID,
		clientMode,
		role,
		strings.Join(scopes, ","),
		strconv.FormatInt(signedAt, 10),
		token,
		nonce,
	}, "\n")
}

// ParseDevicePublicKey accepts a raw base64 Ed25519 key or an ssh-ed25519
// authorized-key line and returns the Ed25519 public key.
func ParseDevicePublicKey(s string) (ed25519.PublicKey, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "ssh-ed25519 ") {
		parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPublicKey, err)
		}
		cryptoKey, ok := parsed.(ssh.CryptoPublicKey)
		if !ok {
			return nil, ErrBadPublicKey
		}
		edKey, ok := cryptoKey.CryptoPublicKey().(ed25519.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an ed25519 key", ErrBadPublicKey)
		}
		return edKey, nil
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPublicKey, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: length %d", ErrBadPublicKey, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// SignatureRequest is the device block of a connect request.
type SignatureRequest struct {
	DeviceID   string
	PublicKey  string
	Signature  string // base64
	SignedAt   int64  // unix seconds
	Nonce      string
	ClientID   string
	ClientMode string
	Role       string
	Scopes     []string
	Token      string
}

// DeviceVerifier checks device signatures against issued challenge nonces.
type DeviceVerifier struct {
	maxAge time.Duration
	nonces *dedupe.Cache
}

// NewDeviceVerifier creates a verifier with replay protection.
func NewDeviceVerifier() *DeviceVerifier {
	return &DeviceVerifier{
		maxAge: SignatureMaxAge,
		nonces: dedupe.New(SignatureMaxAge, nonceCacheSize),
	}
}

// Verify checks the signature over the canonical payload. challengeNonce is
// the nonce the gateway issued on this connection; the signed nonce must
// match it and must not have been used before.
func (v *DeviceVerifier) Verify(req *SignatureRequest, challengeNonce string) error {
	if req.Nonce == "" || req.Nonce != challengeNonce {
		return ErrNonceMismatch
	}

	signedAt := time.Unix(req.SignedAt, 0)
	age := time.Since(signedAt)
	if age < -time.Minute {
		return fmt.Errorf("%w: signedAt is in the future", ErrStaleSignature)
	}
	if age > v.maxAge {
		return fmt.Errorf("%w: age %v exceeds %v", ErrStaleSignature, age.Round(time.Second), v.maxAge)
	}

	pub, err := ParseDevicePublicKey(req.PublicKey)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		return fmt.Errorf("%w: bad encoding", ErrBadSignature)
	}

	payload := SignaturePayload(req.DeviceID, req.ClientID, req.ClientMode,
		req.Role, req.Scopes, req.SignedAt, req.Token, req.Nonce)
	if !ed25519.Verify(pub, []byte(payload), sig) {
		return ErrBadSignature
	}

	if v.nonces.Seen(req.Nonce) {
		return ErrNonceReplay
	}
	return nil
}
