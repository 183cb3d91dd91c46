// ABOUTME: Tests for device signature verification
// ABOUTME: Generates real Ed25519 keypairs; covers replay, staleness, key formats

package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func newSignedRequest(t *testing.T, nonce string) (*SignatureRequest, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	req := &SignatureRequest{
		DeviceID:   "dev-1",
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
		SignedAt:   time.Now().Unix(),
		Nonce:      nonce,
		ClientID:   "cli",
		ClientMode: "interactive",
		Role:       "operator",
		Scopes:     []string{"send", "agent"},
	}
	signRequest(req, priv)
	return req, priv
}

func signRequest(req *SignatureRequest, priv ed25519.PrivateKey) {
	payload := SignaturePayload(req.DeviceID, req.ClientID, req.ClientMode,
		req.Role, req.Scopes, req.SignedAt, req.Token, req.Nonce)
	req.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(payload)))
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	req, _ := newSignedRequest(t, "nonce-1")
	v := NewDeviceVerifier()
	require.NoError(t, v.Verify(req, "nonce-1"))
}

func TestVerifyRejectsNonceMismatch(t *testing.T) {
	req, _ := newSignedRequest(t, "nonce-1")
	v := NewDeviceVerifier()
	assert.ErrorIs(t, v.Verify(req, "different"), ErrNonceMismatch)

	req.Nonce = ""
	assert.ErrorIs(t, v.Verify(req, ""), ErrNonceMismatch)
}

func TestVerifyRejectsReplay(t *testing.T) {
	req, _ := newSignedRequest(t, "nonce-1")
	v := NewDeviceVerifier()
	require.NoError(t, v.Verify(req, "nonce-1"))
	assert.ErrorIs(t, v.Verify(req, "nonce-1"), ErrNonceReplay)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	req, _ := newSignedRequest(t, "nonce-1")
	req.Role = "admin"
	v := NewDeviceVerifier()
	assert.ErrorIs(t, v.Verify(req, "nonce-1"), ErrBadSignature)
}

func TestVerifyRejectsStaleSignature(t *testing.T) {
	req, priv := newSignedRequest(t, "nonce-1")
	req.SignedAt = time.Now().Add(-10 * time.Minute).Unix()
	signRequest(req, priv)
	v := NewDeviceVerifier()
	assert.ErrorIs(t, v.Verify(req, "nonce-1"), ErrStaleSignature)

	req.SignedAt = time.Now().Add(5 * time.Minute).Unix()
	signRequest(req, priv)
	assert.ErrorIs(t, v.Verify(req, "nonce-1"), ErrStaleSignature)
}

func TestVerifyAcceptsSSHFormatKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	req := &SignatureRequest{
		DeviceID:  "dev-ssh",
		PublicKey: string(ssh.MarshalAuthorizedKey(sshPub)),
		SignedAt:  time.Now().Unix(),
		Nonce:     "nonce-ssh",
	}
	signRequest(req, priv)

	v := NewDeviceVerifier()
	require.NoError(t, v.Verify(req, "nonce-ssh"))
}

func TestParseDevicePublicKeyErrors(t *testing.T) {
	_, err := ParseDevicePublicKey("not base64!!")
	assert.ErrorIs(t, err, ErrBadPublicKey)

	_, err = ParseDevicePublicKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrBadPublicKey)

	_, err = ParseDevicePublicKey("ssh-ed25519 garbage")
	assert.ErrorIs(t, err, ErrBadPublicKey)
}

func TestSignaturePayloadShape(t *testing.T) {
	payload := SignaturePayload("d", "c", "m", "r", []string{"a", "b"}, 42, "tok", "n")
	assert.Equal(t, "d\nc\nm\nr\na,b\n42\ntok\nn", payload)
}
