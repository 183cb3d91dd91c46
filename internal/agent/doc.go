// Package agent runs bounded tool-calling turns against an LLM backend.
//
// A turn appends the user message to the session, calls the backend with
// the system context and tool definitions, executes any requested tool
// calls through a ToolExecutor, and loops until the model answers in plain
// text or the round limit is hit. The package also assembles the system
// context from the workspace AGENTS.md and the loaded skills.
package agent
