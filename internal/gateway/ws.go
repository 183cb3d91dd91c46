// ABOUTME: WebSocket handler implementing the control protocol
// ABOUTME: connect handshake and auth, health, status, send, and agent methods

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/chaihq/chai/internal/agent"
	"github.com/chaihq/chai/internal/auth"
	"github.com/chaihq/chai/internal/llm"
	"github.com/chaihq/chai/internal/routing"
	"github.com/chaihq/chai/internal/store"
)

// wsReadLimit bounds a single client frame.
const wsReadLimit = 512 * 1024

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(wsReadLimit)
	defer conn.CloseNow()

	ctx := r.Context()
	c := &wsConn{gateway: g, conn: conn, nonce: uuid.New().String()}

	challenge := Event{
		Type:  "event",
		Event: "connect.challenge",
		Payload: map[string]any{
			"nonce": c.nonce,
			"ts":    time.Now().UnixMilli(),
		},
	}
	if err := c.writeJSON(ctx, challenge); err != nil {
		return
	}

	events, unsubscribe := g.events.Subscribe()
	defer unsubscribe()

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readErr:
			return
		case frame, ok := <-events:
			if !ok {
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
				return
			}
		case data := <-frames:
			var req Request
			if err := json.Unmarshal(data, &req); err != nil || req.Type != "req" {
				continue
			}
			if err := c.writeJSON(ctx, c.dispatch(ctx, &req)); err != nil {
				return
			}
		}
	}
}

// wsConn is the per-connection state: the challenge nonce issued on open.
type wsConn struct {
	gateway *Gateway
	conn    *websocket.Conn
	nonce   string
}

func (c *wsConn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) dispatch(ctx context.Context, req *Request) Response {
	switch req.Method {
	case "connect":
		return c.handleConnect(ctx, req)
	case "health":
		return okResponse(req.ID, map[string]any{
			"runtime":  "running",
			"protocol": ProtocolVersion,
		})
	case "status":
		return c.handleStatus(req)
	case "send":
		return c.handleSend(ctx, req)
	case "agent":
		return c.handleAgent(ctx, req)
	default:
		return errResponse(req.ID, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

// handleConnect authenticates the client. Three paths: a stored device
// token, a device signature over the challenge nonce (pairing unknown
// devices when the gateway token checks out), or the plain gateway token.
func (c *wsConn) handleConnect(ctx context.Context, req *Request) Response {
	g := c.gateway

	var params ConnectParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, "invalid connect params")
	}

	var helloAuth *HelloAuth
	switch {
	case params.Auth.DeviceToken != "":
		deviceID, err := g.tokens.Verify(params.Auth.DeviceToken)
		if err != nil {
			return errResponse(req.ID, "invalid device token")
		}
		device, err := g.store.GetDevice(ctx, deviceID)
		if err != nil {
			return errResponse(req.ID, "invalid device token")
		}
		_ = g.store.TouchDevice(ctx, deviceID)
		helloAuth = &HelloAuth{
			DeviceToken: params.Auth.DeviceToken,
			Role:        device.Role,
			Scopes:      device.Scopes,
		}

	case params.Device != nil:
		res, errRes := c.handleDeviceConnect(ctx, req.ID, &params)
		if errRes != nil {
			return *errRes
		}
		helloAuth = res

	default:
		if required := g.requiredToken(); required != "" {
			provided := params.Auth.Token
			if provided == "" {
				return errResponse(req.ID, "unauthorized: gateway token missing")
			}
			if provided != required {
				return errResponse(req.ID, "unauthorized: gateway token mismatch")
			}
		}
	}

	protocol := ProtocolVersion
	if params.MaxProtocol > 0 && params.MaxProtocol < protocol {
		protocol = params.MaxProtocol
	}
	hello := HelloOK{
		Type:     "hello-ok",
		Protocol: protocol,
		Policy:   &HelloPolicy{TickIntervalMs: 15000},
		Auth:     helloAuth,
	}
	return okResponse(req.ID, hello)
}

// handleDeviceConnect verifies the device signature and either recognizes a
// paired device or pairs a new one when the gateway token is correct.
func (c *wsConn) handleDeviceConnect(ctx context.Context, reqID string, params *ConnectParams) (*HelloAuth, *Response) {
	g := c.gateway
	dev := params.Device

	sigReq := &auth.SignatureRequest{
		DeviceID:   dev.ID,
		PublicKey:  dev.PublicKey,
		Signature:  dev.Signature,
		SignedAt:   dev.SignedAt,
		Nonce:      dev.Nonce,
		ClientID:   params.Client.ID,
		ClientMode: params.Client.Mode,
		Role:       params.Role,
		Scopes:     params.Scopes,
		Token:      params.Auth.Token,
	}
	if err := g.verifier.Verify(sigReq, c.nonce); err != nil {
		g.logger.Debug("device signature verification failed", "device", dev.ID, "error", err)
		res := errResponse(reqID, err.Error())
		return nil, &res
	}

	known, err := g.store.GetDevice(ctx, dev.ID)
	switch {
	case err == nil:
		token, issueErr := g.tokens.Issue(known.DeviceID)
		if issueErr != nil {
			res := errResponse(reqID, "issuing device token failed")
			return nil, &res
		}
		_ = g.store.TouchDevice(ctx, known.DeviceID)
		return &HelloAuth{DeviceToken: token, Role: known.Role, Scopes: known.Scopes}, nil

	case errors.Is(err, store.ErrNotFound):
		if required := g.requiredToken(); required != "" && params.Auth.Token != required {
			res := errResponse(reqID, "pairing required: provide gateway token to approve this device")
			return nil, &res
		}
		device := &store.Device{
			DeviceID:  dev.ID,
			PublicKey: dev.PublicKey,
			Role:      params.Role,
			Scopes:    params.Scopes,
		}
		if err := g.store.UpsertDevice(ctx, device); err != nil {
			g.logger.Warn("persisting paired device failed", "device", dev.ID, "error", err)
			res := errResponse(reqID, "pairing failed")
			return nil, &res
		}
		token, issueErr := g.tokens.Issue(dev.ID)
		if issueErr != nil {
			res := errResponse(reqID, "issuing device token failed")
			return nil, &res
		}
		g.logger.Info("paired new device", "device", dev.ID, "role", params.Role)
		return &HelloAuth{DeviceToken: token, Role: params.Role, Scopes: params.Scopes}, nil

	default:
		res := errResponse(reqID, "device lookup failed")
		return nil, &res
	}
}

func (c *wsConn) handleStatus(req *Request) Response {
	g := c.gateway
	backendName := g.cfg.DefaultBackend()
	model := g.model("")
	if model == "" {
		model = llm.DefaultModel(backendName)
	}
	payload := map[string]any{
		"runtime":        "running",
		"protocol":       ProtocolVersion,
		"port":           g.cfg.Gateway.Port,
		"bind":           g.cfg.Gateway.Bind,
		"auth":           g.authMode(),
		"defaultBackend": backendName,
		"defaultModel":   model,
		"ollamaModels":   g.discoveredModels("ollama"),
		"lmStudioModels": g.discoveredModels("lmstudio"),
		"agentContext":   g.agentCtx,
		"systemContext":  g.systemContext(),
		"skillsContext":  agent.BuildSkillContext(g.loadedSkills, g.contextMode()),
		"date":           time.Now().Format("2006-01-02"),
		"contextMode":    string(g.contextMode()),
	}
	return okResponse(req.ID, payload)
}

func (c *wsConn) handleSend(ctx context.Context, req *Request) Response {
	g := c.gateway

	var params SendParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ChannelID == "" {
		return errResponse(req.ID, "invalid send params")
	}
	handle := g.registry.Get(params.ChannelID)
	if handle == nil {
		return errResponse(req.ID, "channel not found")
	}
	if err := handle.SendMessage(ctx, params.ConversationID, params.Message); err != nil {
		return errResponse(req.ID, err.Error())
	}
	return okResponse(req.ID, map[string]any{"sent": true})
}

func (c *wsConn) handleAgent(ctx context.Context, req *Request) Response {
	g := c.gateway

	var params AgentParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Message == "" {
		return errResponse(req.ID, "invalid agent params")
	}

	var sessionID string
	switch {
	case params.SessionID == "":
		sessionID = g.sessions.Create().ID
	default:
		if _, err := g.sessions.Get(params.SessionID); err == nil {
			sessionID = params.SessionID
		} else {
			// Unknown ids map stably onto a fresh session.
			sess, _ := g.sessions.GetOrCreate("ws:" + params.SessionID)
			sessionID = sess.ID
		}
	}

	userMsg := llm.ChatMessage{Role: "user", Content: params.Message}
	if err := g.sessions.Append(sessionID, userMsg); err != nil {
		return errResponse(req.ID, err.Error())
	}
	g.broadcastSessionMessage(sessionID, "user", params.Message, nil)

	result, err := g.runTurn(ctx, sessionID, params.Backend, params.Model)
	if err != nil {
		return errResponse(req.ID, err.Error())
	}

	binding, bound := g.bindings.ConversationFor(sessionID)
	var key *routing.ConversationKey
	if bound {
		key = &binding
	}
	g.broadcastSessionMessage(sessionID, "assistant", result.Content, key)
	if bound && result.Content != "" {
		if handle := g.registry.Get(binding.ChannelID); handle != nil {
			if err := handle.SendMessage(ctx, binding.ConversationID, result.Content); err != nil {
				g.logger.Warn("delivering reply to bound channel failed", "channel", binding.ChannelID, "error", err)
			}
		}
	}

	return okResponse(req.ID, map[string]any{
		"reply":     result.Content,
		"sessionId": sessionID,
		"toolCalls": result.ToolCalls,
	})
}

// authMode reports the effective connect auth mode.
func (g *Gateway) authMode() string {
	if g.requiredToken() != "" {
		return "token"
	}
	return "none"
}

// requiredToken returns the gateway token clients must present, or "" when
// token auth is off.
func (g *Gateway) requiredToken() string {
	if g.cfg.Gateway.Auth.Mode != "token" {
		return ""
	}
	return g.cfg.GatewayToken()
}
