// Package tools executes declarative skill tools described by tools.json.
package tools
