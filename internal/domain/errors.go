package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindMediaAccess        ErrorKind = "media_access"
	KindTokenFetch         ErrorKind = "token_fetch"
	KindSdpAnswer          ErrorKind = "sdp_answer"
	KindDataChannelMessage ErrorKind = "data_channel_message"
	KindPeerLink           ErrorKind = "peer_link"
	KindConnection         ErrorKind = "connection"
)

var (
	ErrMediaAccess        = errors.New("failed to access microphone")
	ErrTokenFetch         = errors.New("failed to fetch ephemeral token")
	ErrSdpAnswer          = errors.New("failed to receive SDP answer")
	ErrDataChannelMessage = errors.New("malformed data channel message")
	ErrPeerLink           = errors.New("peer link failed")
	ErrConnection         = errors.New("connection failed")

	ErrSessionBusy    = errors.New("session already connecting or connected")
	ErrConnectAborted = errors.New("connect aborted by disconnect")
	ErrNotConnected   = errors.New("control channel not open")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindMediaAccess:
		return ErrMediaAccess
	case KindTokenFetch:
		return ErrTokenFetch
	case KindSdpAnswer:
		return ErrSdpAnswer
	case KindDataChannelMessage:
		return ErrDataChannelMessage
	case KindPeerLink:
		return ErrPeerLink
	default:
		return ErrConnection
	}
}

// Error is a session failure of a known kind. errors.Is matches it against
// the kind's sentinel as well as the wrapped cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// Normalize returns err as a typed *Error, wrapping anything untyped as a
// generic connection error.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return NewError(KindConnection, "connect", err)
}

// KindOf returns the kind of a typed error, or KindConnection.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindConnection
}
