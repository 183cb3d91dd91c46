// Package gateway is the chai server core.
//
// One port serves three surfaces: a JSON health probe at /, the Telegram
// webhook receiver at /telegram/webhook, and the WebSocket control protocol
// at /ws. The WebSocket protocol is request/response framed JSON with
// server-pushed events; connect is the handshake and supports three auth
// paths (device token, device signature pairing, plain gateway token).
//
// Inbound channel messages from all connectors funnel through one buffered
// queue consumed by a single goroutine, which binds conversations to
// sessions and runs agent turns. Replies go back out through the channel
// registry, and every session message is broadcast to WebSocket clients.
//
// The listener is plain TCP, or a tsnet node when Tailscale is enabled.
package gateway
