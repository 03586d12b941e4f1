package media

import "sync/atomic"

type TrackState int32

const (
	TrackStateLive TrackState = iota
	TrackStateMuted
	TrackStateEnded
)

func (s TrackState) String() string {
	switch s {
	case TrackStateLive:
		return "live"
	case TrackStateMuted:
		return "muted"
	default:
		return "ended"
	}
}

// trackState is the state of an outbound capture track. Zero value is live.
type trackState struct {
	v atomic.Int32
}

func (s *trackState) Get() TrackState { return TrackState(s.v.Load()) }

// Set moves the track to st unless it already ended.
func (s *trackState) Set(st TrackState) {
	for {
		cur := s.v.Load()
		if TrackState(cur) == TrackStateEnded {
			return
		}
		if s.v.CompareAndSwap(cur, int32(st)) {
			return
		}
	}
}
