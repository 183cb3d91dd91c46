// Package config handles configuration loading for the chai gateway.
//
// Configuration is a JSON file, by default ~/.chai/config.json, overridable
// with CHAI_CONFIG_PATH. ${VAR_NAME} references in the raw file are expanded
// from the environment before parsing, and a missing file yields defaults.
//
// Sections:
//
//	gateway:  port (15151), bind (127.0.0.1), auth mode/token, tailscale
//	channels: telegram bot token and webhook, matrix connector
//	agents:   default backend/model, discovery opt-in, per-backend URLs
//	skills:   skill root, extra dirs, enabled names, context mode, scripts
//	store:    sqlite path for paired devices, secrets, and the tool audit log
//	logging:  level and format mapped onto slog handlers
//
// Secrets prefer the environment: CHAI_GATEWAY_TOKEN and TELEGRAM_BOT_TOKEN
// override their config fields, and TS_AUTHKEY backs the tailscale auth key.
//
// Validation is fatal at startup. In particular a non-loopback bind without
// a gateway token is refused.
package config
