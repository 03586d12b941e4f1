package app

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	CloseObserver
)

// Policy decides what happens to an observer whose send queue is full.
type Policy interface {
	OnBackPressure(id ClientID, dropped int) BackpressureAction
}

// SimplePolicy drops frames and closes the observer once MaxDropped frames
// were lost. A zero MaxDropped closes on the first drop.
type SimplePolicy struct {
	MaxDropped int
}

func (p SimplePolicy) OnBackPressure(_ ClientID, dropped int) BackpressureAction {
	if dropped > p.MaxDropped {
		return CloseObserver
	}
	return DropFrame
}
