// Package core declares the collaborators a session is composed from.
// Adapters implement them; the session manager only sees these interfaces.
package core
