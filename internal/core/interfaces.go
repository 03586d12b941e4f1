package core

// Frame is a raw payload queued for an observer connection.
type Frame []byte

// SignalConnection abstracts the observer messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
