// Package hub implements the room broadcast hub using the actor pattern.
//
// A single goroutine owns the connection registry and the room index and processes commands from a
// channel, so membership never tears. Broadcast takes a member snapshot from the actor and fans out
// outside it; each connection has its own bounded queue and write goroutine, and a full queue gets
// the connection disconnected instead of slowing everyone else down.
package hub
