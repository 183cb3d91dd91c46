// ABOUTME: WebSocket protocol tests against a live handler
// ABOUTME: Covers connect auth paths, pairing, status, send, agent, and errors

package gateway

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaihq/chai/internal/auth"
	"github.com/chaihq/chai/internal/llm"
	"github.com/chaihq/chai/internal/routing"
)

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	ctx  context.Context
}

// dialWS connects to the gateway and consumes the challenge event.
func dialWS(t *testing.T, g *Gateway) (*wsClient, string) {
	t.Helper()
	srv := httptest.NewServer(g.handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })

	c := &wsClient{t: t, conn: conn, ctx: ctx}
	challenge := c.readFrame()
	require.Equal(t, "connect.challenge", challenge["event"])
	payload := challenge["payload"].(map[string]any)
	nonce, _ := payload["nonce"].(string)
	require.NotEmpty(t, nonce)
	return c, nonce
}

func (c *wsClient) readFrame() map[string]any {
	c.t.Helper()
	_, data, err := c.conn.Read(c.ctx)
	require.NoError(c.t, err)
	var frame map[string]any
	require.NoError(c.t, json.Unmarshal(data, &frame))
	return frame
}

// call sends a request and reads frames until its response arrives.
func (c *wsClient) call(id, method string, params any) map[string]any {
	c.t.Helper()
	data, err := json.Marshal(map[string]any{
		"type":   "req",
		"id":     id,
		"method": method,
		"params": params,
	})
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.Write(c.ctx, websocket.MessageText, data))

	for {
		frame := c.readFrame()
		if frame["type"] == "res" && frame["id"] == id {
			return frame
		}
	}
}

func payloadOf(t *testing.T, frame map[string]any) map[string]any {
	t.Helper()
	require.Equal(t, true, frame["ok"], "expected ok response, got %v", frame)
	payload, ok := frame["payload"].(map[string]any)
	require.True(t, ok)
	return payload
}

func TestConnectNoAuthMode(t *testing.T) {
	g := testGateway(t, &scriptedBackend{})
	c, _ := dialWS(t, g)

	res := c.call("1", "connect", map[string]any{"maxProtocol": 1})
	hello := payloadOf(t, res)
	assert.Equal(t, "hello-ok", hello["type"])
	assert.EqualValues(t, 1, hello["protocol"])
	assert.Nil(t, hello["auth"])
}

func TestConnectTokenAuth(t *testing.T) {
	g := testGateway(t, &scriptedBackend{})
	g.cfg.Gateway.Auth.Mode = "token"
	g.cfg.Gateway.Auth.Token = "sekrit"

	c, _ := dialWS(t, g)

	res := c.call("1", "connect", map[string]any{"auth": map[string]any{"token": "wrong"}})
	assert.Equal(t, false, res["ok"])
	assert.Contains(t, res["error"], "mismatch")

	res = c.call("2", "connect", map[string]any{})
	assert.Equal(t, false, res["ok"])
	assert.Contains(t, res["error"], "missing")

	res = c.call("3", "connect", map[string]any{"auth": map[string]any{"token": "sekrit"}})
	hello := payloadOf(t, res)
	assert.Equal(t, "hello-ok", hello["type"])
}

// signDevice builds a signed device block for the given challenge nonce.
func signDevice(t *testing.T, priv ed25519.PrivateKey, pub ed25519.PublicKey, deviceID, role string, scopes []string, token, nonce string) map[string]any {
	t.Helper()
	signedAt := time.Now().Unix()
	payload := auth.SignaturePayload(deviceID, "cli-1", "operator", role, scopes, signedAt, token, nonce)
	sig := ed25519.Sign(priv, []byte(payload))
	return map[string]any{
		"id":        deviceID,
		"publicKey": base64.StdEncoding.EncodeToString(pub),
		"signature": base64.StdEncoding.EncodeToString(sig),
		"signedAt":  signedAt,
		"nonce":     nonce,
	}
}

func TestConnectDevicePairingAndTokenReuse(t *testing.T) {
	g := testGateway(t, &scriptedBackend{})
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	c, nonce := dialWS(t, g)
	device := signDevice(t, priv, pub, "dev-1", "operator", []string{"send", "agent"}, "", nonce)

	res := c.call("1", "connect", map[string]any{
		"client": map[string]any{"id": "cli-1", "mode": "operator"},
		"role":   "operator",
		"scopes": []string{"send", "agent"},
		"device": device,
	})
	hello := payloadOf(t, res)
	authInfo, ok := hello["auth"].(map[string]any)
	require.True(t, ok, "pairing should return auth info")
	deviceToken, _ := authInfo["deviceToken"].(string)
	require.NotEmpty(t, deviceToken)
	assert.Equal(t, "operator", authInfo["role"])

	stored, err := g.store.GetDevice(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"send", "agent"}, stored.Scopes)

	// Reconnect with the issued device token.
	c2, _ := dialWS(t, g)
	res = c2.call("1", "connect", map[string]any{
		"auth": map[string]any{"deviceToken": deviceToken},
	})
	hello = payloadOf(t, res)
	authInfo = hello["auth"].(map[string]any)
	assert.Equal(t, deviceToken, authInfo["deviceToken"])
	assert.Equal(t, "operator", authInfo["role"])
}

func TestConnectDeviceBadSignature(t *testing.T) {
	g := testGateway(t, &scriptedBackend{})
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	c, nonce := dialWS(t, g)
	device := signDevice(t, priv, pub, "dev-1", "operator", nil, "", nonce)
	device["signature"] = base64.StdEncoding.EncodeToString(make([]byte, ed25519.SignatureSize))

	res := c.call("1", "connect", map[string]any{
		"client": map[string]any{"id": "cli-1", "mode": "operator"},
		"role":   "operator",
		"device": device,
	})
	assert.Equal(t, false, res["ok"])
}

func TestConnectDevicePairingRequiresToken(t *testing.T) {
	g := testGateway(t, &scriptedBackend{})
	g.cfg.Gateway.Auth.Mode = "token"
	g.cfg.Gateway.Auth.Token = "sekrit"
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	c, nonce := dialWS(t, g)
	device := signDevice(t, priv, pub, "dev-2", "operator", nil, "", nonce)
	res := c.call("1", "connect", map[string]any{
		"client": map[string]any{"id": "cli-1", "mode": "operator"},
		"role":   "operator",
		"device": device,
	})
	assert.Equal(t, false, res["ok"])
	assert.Contains(t, res["error"], "pairing required")
}

func TestConnectInvalidDeviceToken(t *testing.T) {
	g := testGateway(t, &scriptedBackend{})
	c, _ := dialWS(t, g)

	res := c.call("1", "connect", map[string]any{
		"auth": map[string]any{"deviceToken": "not-a-jwt"},
	})
	assert.Equal(t, false, res["ok"])
	assert.Contains(t, res["error"], "invalid device token")
}

func TestHealthMethod(t *testing.T) {
	g := testGateway(t, &scriptedBackend{})
	c, _ := dialWS(t, g)

	payload := payloadOf(t, c.call("1", "health", map[string]any{}))
	assert.Equal(t, "running", payload["runtime"])
	assert.EqualValues(t, 1, payload["protocol"])
}

func TestStatusMethod(t *testing.T) {
	g := testGateway(t, &scriptedBackend{})
	g.models["ollama"] = []llm.Model{{Name: "llama3.2:latest"}}
	c, _ := dialWS(t, g)

	payload := payloadOf(t, c.call("1", "status", map[string]any{}))
	assert.Equal(t, "running", payload["runtime"])
	assert.Equal(t, "ollama", payload["defaultBackend"])
	assert.Equal(t, "llama3.2:latest", payload["defaultModel"])
	assert.Equal(t, "none", payload["auth"])
	assert.Equal(t, "full", payload["contextMode"])
	assert.Equal(t, time.Now().Format("2006-01-02"), payload["date"])
	_, hasSkills := payload["skillsContext"]
	assert.True(t, hasSkills, "status payload should carry skillsContext")
	models, ok := payload["ollamaModels"].([]any)
	require.True(t, ok)
	assert.Len(t, models, 1)
}

func TestSendMethod(t *testing.T) {
	g := testGateway(t, &scriptedBackend{})
	stub := &stubChannel{id: "telegram"}
	g.registry.Register(stub)
	c, _ := dialWS(t, g)

	payload := payloadOf(t, c.call("1", "send", map[string]any{
		"channelId":      "telegram",
		"conversationId": "42",
		"message":        "hi",
	}))
	assert.Equal(t, true, payload["sent"])
	assert.Equal(t, []string{"42:hi"}, stub.sent)

	res := c.call("2", "send", map[string]any{
		"channelId":      "matrix",
		"conversationId": "!room",
		"message":        "hi",
	})
	assert.Equal(t, false, res["ok"])
	assert.Contains(t, res["error"], "channel not found")
}

func TestAgentMethod(t *testing.T) {
	backend := &scriptedBackend{responses: []*llm.ChatResponse{reply("hello there")}}
	g := testGateway(t, backend)
	c, _ := dialWS(t, g)

	payload := payloadOf(t, c.call("1", "agent", map[string]any{"message": "hi"}))
	assert.Equal(t, "hello there", payload["reply"])
	sessionID, _ := payload["sessionId"].(string)
	require.NotEmpty(t, sessionID)

	// Second turn on the same session sees the prior history.
	backend.mu.Lock()
	backend.responses = []*llm.ChatResponse{reply("again")}
	backend.mu.Unlock()
	payload = payloadOf(t, c.call("2", "agent", map[string]any{
		"sessionId": sessionID,
		"message":   "more",
	}))
	assert.Equal(t, "again", payload["reply"])
	assert.Equal(t, sessionID, payload["sessionId"])

	msgs, err := g.sessions.Messages(sessionID)
	require.NoError(t, err)
	// user, assistant, user, assistant
	require.Len(t, msgs, 4)
	assert.Equal(t, "user", msgs[2].Role)
	assert.Equal(t, "more", msgs[2].Content)
}

func TestAgentDeliversToBoundChannel(t *testing.T) {
	backend := &scriptedBackend{responses: []*llm.ChatResponse{reply("routed")}}
	g := testGateway(t, backend)
	stub := &stubChannel{id: "telegram"}
	g.registry.Register(stub)

	sess := g.sessions.Create()
	g.bindings.Bind(routing.ConversationKey{ChannelID: "telegram", ConversationID: "42"}, sess.ID)

	c, _ := dialWS(t, g)
	payload := payloadOf(t, c.call("1", "agent", map[string]any{
		"sessionId": sess.ID,
		"message":   "hi",
	}))
	assert.Equal(t, "routed", payload["reply"])
	assert.Equal(t, []string{"42:routed"}, stub.sent)
}

func TestAgentInvalidParams(t *testing.T) {
	g := testGateway(t, &scriptedBackend{})
	c, _ := dialWS(t, g)

	res := c.call("1", "agent", map[string]any{})
	assert.Equal(t, false, res["ok"])
}

func TestUnknownMethod(t *testing.T) {
	g := testGateway(t, &scriptedBackend{})
	c, _ := dialWS(t, g)

	res := c.call("1", "bogus", map[string]any{})
	assert.Equal(t, false, res["ok"])
	assert.Contains(t, res["error"], "unknown method: bogus")
}
