// Package api contains transport-level service implementations.
//
// The httpapi subpackage serves the game over REST endpoints plus a
// Server-Sent Events stream for real-time game events. Handlers stay
// thin: request decoding, status-code mapping, and rate limiting live
// here, while game semantics live in internal/game.
package api
