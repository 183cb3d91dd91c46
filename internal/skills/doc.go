// Package skills discovers SKILL.md directories and their tool descriptors.
//
// A skill is a directory holding a SKILL.md file with optional YAML
// frontmatter (name, description, required binaries) and an optional
// tools.json describing declarative tools, their exec allowlist, and how to
// map model arguments onto a CLI invocation. Skills load once at startup
// and are immutable afterwards.
package skills
