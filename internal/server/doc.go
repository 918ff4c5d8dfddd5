// Package server implements the GeoPulse presence hub: a WebSocket service
// where clients report their position and receive live location updates
// from every other connected session.
//
// The implementation is split across specialized files: the session
// registry, the hub event loop, per-connection transport adapters,
// configuration, origin validation, rate limiting, and the HTTP surface.
package server
