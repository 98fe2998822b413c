// Package server implements the HTTP and WebSocket side of the chat service.
//
// The Hub is the only goroutine that touches the message log and the
// presence registry. Clients decode their frames and queue typed events for
// it; the hub answers with history, full-log and presence broadcasts, and
// hands every new log version to a persister. The rest of the package is
// configuration, routing, origin checks and rate limiting around that loop.
package server
