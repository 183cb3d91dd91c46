// Package routing binds channel conversations to agent sessions.
package routing
