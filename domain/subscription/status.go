package subscription

import "math/big"

// State is one of the four mutually exclusive subscription states.
type State string

const (
	StateActive  State = "active"
	StateGrace   State = "grace"
	StateFinal   State = "final"
	StateExpired State = "expired"
)

// Label returns the display label for the state.
func (s State) Label() string {
	switch s {
	case StateActive:
		return "Active"
	case StateGrace:
		return "Grace Period"
	case StateFinal:
		return "Final Period"
	case StateExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Indicator returns the traffic-light name used by the dashboard badge.
func (s State) Indicator() string {
	switch s {
	case StateActive:
		return "green"
	case StateGrace:
		return "yellow"
	case StateFinal:
		return "red"
	default:
		return "expired"
	}
}

// Color returns the badge color as a hex string.
func (s State) Color() string {
	switch s {
	case StateActive:
		return "#4caf50"
	case StateGrace:
		return "#ff9800"
	case StateFinal:
		return "#f44336"
	default:
		return "#9e9e9e"
	}
}

// Window is one labelled segment of the subscription timeline.
type Window struct {
	State State
	Start *big.Int
	End   *big.Int
}

// Timeline holds the window boundaries derived from the terms.
type Timeline struct {
	Start     *big.Int
	End       *big.Int // end of the active window
	YellowEnd *big.Int
	RedEnd    *big.Int
	Windows   []Window
}

// Status is the derived subscription status (value type).
type Status struct {
	State    State
	TimeLeft *big.Int // seconds, never negative
	Timeline Timeline
}

// BuildTimeline computes the active, grace and final windows.
// ok is false when any term is absent.
// This is a PURE function.
func BuildTimeline(t Terms) (Timeline, bool) {
	if !t.Complete() {
		return Timeline{}, false
	}

	start := new(big.Int).Set(t.Start)
	end := new(big.Int).Add(start, t.PeriodDuration)
	yellowEnd := new(big.Int).Add(end, t.YellowDuration)
	redEnd := new(big.Int).Add(yellowEnd, t.RedDuration)

	return Timeline{
		Start:     start,
		End:       end,
		YellowEnd: yellowEnd,
		RedEnd:    redEnd,
		Windows: []Window{
			{State: StateActive, Start: start, End: end},
			{State: StateGrace, Start: end, End: yellowEnd},
			{State: StateFinal, Start: yellowEnd, End: redEnd},
		},
	}, true
}

// Derive classifies now against the terms. The first matching window wins and
// each upper bound is exclusive, so now == end is already Grace.
// ok is false when now or any term is absent; callers must treat that as
// unknown, not as Expired.
// This is a PURE function.
func Derive(now *big.Int, t Terms) (Status, bool) {
	if now == nil {
		return Status{}, false
	}
	tl, ok := BuildTimeline(t)
	if !ok {
		return Status{}, false
	}

	status := Status{Timeline: tl}
	switch {
	case now.Cmp(tl.End) < 0:
		status.State = StateActive
		status.TimeLeft = new(big.Int).Sub(tl.End, now)
	case now.Cmp(tl.YellowEnd) < 0:
		status.State = StateGrace
		status.TimeLeft = new(big.Int).Sub(tl.YellowEnd, now)
	case now.Cmp(tl.RedEnd) < 0:
		status.State = StateFinal
		status.TimeLeft = new(big.Int).Sub(tl.RedEnd, now)
	default:
		status.State = StateExpired
		status.TimeLeft = new(big.Int)
	}
	return status, true
}
