// ABOUTME: WebSocket wire types for the gateway protocol
// ABOUTME: req/res frames, connect params, hello-ok, send and agent params

package gateway

import "encoding/json"

// ProtocolVersion is the highest protocol this gateway speaks.
const ProtocolVersion = 1

// Request is a client frame: {type:"req", id, method, params}.
type Request struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Response is a server frame: {type:"res", id, ok, payload|error}.
type Response struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	OK      bool   `json:"ok"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Event is a server push frame: {type:"event", event, payload}.
type Event struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func okResponse(id string, payload any) Response {
	return Response{Type: "res", ID: id, OK: true, Payload: payload}
}

func errResponse(id, message string) Response {
	return Response{Type: "res", ID: id, Error: message}
}

// ConnectParams is the handshake sent as the first request.
type ConnectParams struct {
	MinProtocol int            `json:"minProtocol"`
	MaxProtocol int            `json:"maxProtocol"`
	Client      ConnectClient  `json:"client"`
	Role        string         `json:"role"`
	Scopes      []string       `json:"scopes"`
	Auth        ConnectAuth    `json:"auth"`
	Device      *ConnectDevice `json:"device"`
}

// ConnectClient identifies the connecting client.
type ConnectClient struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"`
}

// ConnectAuth carries the gateway token and, on reconnect, a device token.
type ConnectAuth struct {
	Token       string `json:"token"`
	DeviceToken string `json:"deviceToken"`
}

// ConnectDevice is the device identity block used for pairing.
type ConnectDevice struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	SignedAt  int64  `json:"signedAt"`
	Nonce     string `json:"nonce"`
}

// HelloOK is the connect response payload.
type HelloOK struct {
	Type     string       `json:"type"`
	Protocol int          `json:"protocol"`
	Policy   *HelloPolicy `json:"policy,omitempty"`
	Auth     *HelloAuth   `json:"auth,omitempty"`
}

// HelloPolicy carries connection policy hints.
type HelloPolicy struct {
	TickIntervalMs int64 `json:"tickIntervalMs"`
}

// HelloAuth is returned when the connection is device-authenticated.
type HelloAuth struct {
	DeviceToken string   `json:"deviceToken"`
	Role        string   `json:"role"`
	Scopes      []string `json:"scopes"`
}

// SendParams delivers a message to a channel conversation.
type SendParams struct {
	ChannelID      string `json:"channelId"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

// AgentParams runs one agent turn.
type AgentParams struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Backend   string `json:"backend"`
	Model     string `json:"model"`
}
