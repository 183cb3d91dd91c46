// Package auth verifies device pairing signatures and issues device tokens.
//
// Devices authenticate with an Ed25519 signature over a canonical payload
// that includes a server-issued single-use nonce. Once paired, a device
// holds an HS256 JWT signed with the per-install secret and presents it on
// reconnect instead of signing again.
package auth
