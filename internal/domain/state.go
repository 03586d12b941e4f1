// Package domain contains the session entities and error taxonomy, no transport logic.
package domain

type ConnectionState string

const (
	StateUninitialized ConnectionState = "uninitialized"
	StateInitializing  ConnectionState = "initializing"
	StateNegotiating   ConnectionState = "negotiating"
	StateConnected     ConnectionState = "connected"
	StateDisconnected  ConnectionState = "disconnected"
)

func (s ConnectionState) String() string { return string(s) }

// Busy reports whether a session in this state owns resources or has a
// negotiation in flight, so a new connect must be rejected.
func (s ConnectionState) Busy() bool {
	switch s {
	case StateInitializing, StateNegotiating, StateConnected:
		return true
	}
	return false
}
