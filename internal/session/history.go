package session

import (
	"time"
	"unicode/utf8"
)

// Estimator returns the size of a piece of text in budget units
type Estimator func(text string) int

// CharEstimator counts characters (runes). This is the default estimator.
func CharEstimator(text string) int {
	return utf8.RuneCountInString(text)
}

// View is the slice of history sent to the model for one request
type View struct {
	SystemPrompt string
	Turns        []Turn
	// Size is the estimated size of SystemPrompt plus Turns.
	Size int
	// Evicted is the number of older turns left out of the view.
	Evicted int
	// OverBudget is set when the most recent turn does not fit even alone.
	OverBudget bool
}

// Summary describes the current state of the history
type Summary struct {
	TurnCount      int
	UserTurns      int
	AssistantTurns int
	Elapsed        time.Duration
	EstimatedSize  int
}

// History is the ordered turn log for one session. It owns the trimming
// policy and is not safe for concurrent use.
type History struct {
	session  *Session
	estimate Estimator
	now      func() time.Time
}

// HistoryOption configures a History
type HistoryOption func(*History)

// WithEstimator replaces the default character estimator
func WithEstimator(e Estimator) HistoryOption {
	return func(h *History) {
		h.estimate = e
	}
}

// WithClock replaces time.Now for turn timestamps and elapsed time
func WithClock(now func() time.Time) HistoryOption {
	return func(h *History) {
		h.now = now
	}
}

// NewHistory wraps s. The History takes ownership of s.
func NewHistory(s *Session, opts ...HistoryOption) *History {
	h := &History{
		session:  s,
		estimate: CharEstimator,
		now:      wallClock,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// wallClock strips the monotonic reading so timestamps compare equal after a
// persistence round trip.
func wallClock() time.Time {
	return time.Now().Round(0)
}

// Session returns a copy of the underlying session
func (h *History) Session() *Session {
	return h.session.Clone()
}

// Append adds a turn to the end of the history and returns it
func (h *History) Append(role Role, text string) Turn {
	turn := Turn{
		Role:      role,
		Text:      text,
		Timestamp: h.now(),
	}
	h.session.Turns = append(h.session.Turns, turn)
	return turn
}

// Len returns the number of turns, excluding the system prompt
func (h *History) Len() int {
	return len(h.session.Turns)
}

// Last returns the most recent turn
func (h *History) Last() (Turn, bool) {
	if len(h.session.Turns) == 0 {
		return Turn{}, false
	}
	return h.session.Turns[len(h.session.Turns)-1], true
}

// TrimmedView returns the system prompt and the longest run of most recent
// turns whose estimated size fits in budget. The most recent turn is always
// included; if it cannot fit together with the system prompt the view holds
// only that turn and OverBudget is set.
func (h *History) TrimmedView(budget int) View {
	turns := h.session.Turns
	view := View{
		SystemPrompt: h.session.SystemPrompt,
		Size:         h.estimate(h.session.SystemPrompt),
	}
	if len(turns) == 0 {
		view.OverBudget = view.Size > budget
		return view
	}

	last := len(turns) - 1
	view.Size += h.estimate(turns[last].Text)
	if view.Size > budget {
		view.Turns = []Turn{turns[last]}
		view.Evicted = last
		view.OverBudget = true
		return view
	}

	start := last
	for start > 0 {
		size := h.estimate(turns[start-1].Text)
		if view.Size+size > budget {
			break
		}
		view.Size += size
		start--
	}

	view.Turns = make([]Turn, len(turns)-start)
	copy(view.Turns, turns[start:])
	view.Evicted = start
	return view
}

// Clear drops every turn except the system prompt and restarts the session
// clock. It returns the number of turns removed.
func (h *History) Clear() int {
	removed := len(h.session.Turns)
	h.session.Turns = []Turn{}
	h.session.StartTime = h.now()
	return removed
}

// Summary reports counts and sizes without modifying the history
func (h *History) Summary() Summary {
	s := Summary{
		TurnCount:     len(h.session.Turns),
		Elapsed:       h.now().Sub(h.session.StartTime),
		EstimatedSize: h.estimate(h.session.SystemPrompt),
	}
	for _, turn := range h.session.Turns {
		switch turn.Role {
		case RoleUser:
			s.UserTurns++
		case RoleAssistant:
			s.AssistantTurns++
		}
		s.EstimatedSize += h.estimate(turn.Text)
	}
	return s
}
