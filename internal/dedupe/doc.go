// Package dedupe suppresses repeated Telegram update ids and replayed
// connect-challenge nonces within a time window.
package dedupe
