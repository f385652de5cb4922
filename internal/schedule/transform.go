package schedule

import (
	"fmt"
	"strings"
	"time"

	"racesched/internal/model"
)

// SessionDuration is the fixed length assumed for every session.
const SessionDuration = time.Hour

// Policy decides what a failing round does to the rest of the run.
type Policy int

const (
	// PolicyAbort stops at the first failing round and returns no events.
	PolicyAbort Policy = iota
	// PolicySkip drops failing rounds and reports them in Result.Skipped.
	PolicySkip
)

func (p Policy) String() string {
	switch p {
	case PolicySkip:
		return "skip"
	default:
		return "abort"
	}
}

// ParsePolicy accepts "abort" (or "") and "skip".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return PolicyAbort, nil
	case "skip":
		return PolicySkip, nil
	default:
		return PolicyAbort, fmt.Errorf("unknown error policy %q", s)
	}
}

// Result is the output of a Transformer run.
type Result struct {
	Events  []model.Event
	Skipped []*RoundError
}

// Transformer turns decoded rounds into UTC-normalized events. The zero
// value uses SessionDuration and PolicyAbort.
type Transformer struct {
	SessionDuration time.Duration
	Policy          Policy
}

// Transform applies the reference behavior: abort on the first failure.
func Transform(rounds []RawRound) ([]model.Event, error) {
	res, err := Transformer{}.Transform(rounds)
	if err != nil {
		return nil, err
	}
	return res.Events, nil
}

// Transform processes rounds in order. Rounds without any named session
// produce no event and are not reported.
func (t Transformer) Transform(rounds []RawRound) (Result, error) {
	d := t.SessionDuration
	if d <= 0 {
		d = SessionDuration
	}

	res := Result{Events: make([]model.Event, 0, len(rounds))}
	for _, r := range rounds {
		ev, ok, err := transformRound(r, d)
		if err != nil {
			rerr := &RoundError{Index: r.Index, Err: err}
			if t.Policy != PolicySkip {
				return Result{}, rerr
			}
			res.Skipped = append(res.Skipped, rerr)
			continue
		}
		if ok {
			res.Events = append(res.Events, ev)
		}
	}
	return res, nil
}

func transformRound(r RawRound, d time.Duration) (model.Event, bool, error) {
	if !r.Complete() {
		return model.Event{}, false, &FieldError{Field: missingField(r.Missing[0]), Index: r.Index}
	}

	offset, err := ParseOffset(r.GMTOffset)
	if err != nil {
		return model.Event{}, false, err
	}

	ev := model.Event{
		Name:        r.EventName,
		CountryName: stripSpaces(r.Country),
		RoundNumber: r.RoundNumber,
		GMTOffset:   r.GMTOffset,
		Sessions:    []model.Session{},
	}

	for i, s := range r.Sessions {
		if s.Name == "" {
			continue
		}
		local, err := ParseLocal(s.Date)
		if err != nil {
			return model.Event{}, false, err
		}
		start := ToUTC(local, offset)
		ev.Sessions = append(ev.Sessions, model.Session{
			SessionNumber: i + 1,
			Kind:          s.Name,
			Start:         model.NewTimestamp(start),
			End:           model.NewTimestamp(start.Add(d)),
		})
	}

	if len(ev.Sessions) == 0 {
		return model.Event{}, false, nil
	}

	ev.Start, ev.End = ev.Sessions[0].Start, ev.Sessions[0].End
	for _, s := range ev.Sessions[1:] {
		if s.Start.Before(ev.Start.Time) {
			ev.Start = s.Start
		}
		if s.End.After(ev.End.Time) {
			ev.End = s.End
		}
	}
	return ev, true, nil
}

// ToUTC converts a naive local wall clock to UTC: a positive offset means
// local time is ahead of UTC.
func ToUTC(local time.Time, offset time.Duration) time.Time {
	return local.Add(-offset).UTC()
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseLocal parses a naive ISO-8601 timestamp. Fractional seconds are
// accepted; a zone designator is not.
func ParseLocal(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, &TimestampError{Value: s}
	}
	var firstErr error
	for _, layout := range localLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, &TimestampError{Value: s, Err: firstErr}
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// missingField strips the "[index]" suffix used in RawRound.Missing.
func missingField(key string) string {
	if i := strings.IndexByte(key, '['); i > 0 {
		return key[:i]
	}
	return key
}
