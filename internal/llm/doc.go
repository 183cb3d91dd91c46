// Package llm provides chat clients for local model servers.
//
// Two backends are supported: Ollama (native /api/chat, NDJSON streaming)
// and LM Studio (OpenAI-compatible /v1 endpoints with SSE streaming, or the
// native /api/v1 surface without custom tools). Both implement the Backend
// interface consumed by the agent turn loop.
package llm
