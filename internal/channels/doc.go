// Package channels hosts the messaging connectors and their registry.
//
// Each connector implements Handle and forwards user text as InboundMessage
// values on a shared channel. The gateway owns the single consumer, so all
// connectors share one ordered processing path. Telegram supports both
// long-poll and webhook delivery; Matrix syncs through mautrix.
package channels
