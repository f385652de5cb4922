package ics

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"racesched/internal/config"
	appLog "racesched/internal/log"
	"racesched/internal/model"
)

const defaultProductID = "-//racesched//season calendar//EN"

// SessionUID is stable for a given season, event and session slot, so
// calendar clients update entries in place across refreshes. Several
// events may share a round number (pre-season tests are all round 0), so
// the event name is part of the key; occurrence tells apart events that
// repeat both, counting from 0 in season order.
func SessionUID(year, round int, event string, sessionNumber, occurrence int) string {
	name := fmt.Sprintf("racesched:%d:%d:%s:%d", year, round, event, sessionNumber)
	if occurrence > 0 {
		name += ":" + strconv.Itoa(occurrence)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Build renders a season as an iCalendar document with one VEVENT per
// session. DTSTAMP is pinned to the session start so unchanged input
// serializes to identical bytes.
func Build(year int, events []model.Event, productID string) *ical.Calendar {
	if productID == "" {
		productID = defaultProductID
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetName(strconv.Itoa(year) + " season")

	seen := make(map[string]int, len(events))
	for _, ev := range events {
		key := strconv.Itoa(ev.RoundNumber) + "\x00" + ev.Name
		occurrence := seen[key]
		seen[key]++

		for _, s := range ev.Sessions {
			ve := cal.AddEvent(SessionUID(year, ev.RoundNumber, ev.Name, s.SessionNumber, occurrence))
			ve.SetDtStampTime(s.Start.Time)
			ve.SetStartAt(s.Start.Time)
			ve.SetEndAt(s.End.Time)
			ve.SetSummary(ev.Name + " - " + s.Kind)
			ve.SetLocation(ev.CountryName)
			ve.SetDescription(fmt.Sprintf("Round %d, session %d (GMT%s)", ev.RoundNumber, s.SessionNumber, ev.GMTOffset))
		}
	}
	return cal
}

// Render is Build followed by serialization.
func Render(year int, events []model.Event, productID string) string {
	return Build(year, events, productID).Serialize()
}

// CalendarSink writes <Dir>/<year>.ics.
type CalendarSink struct {
	Dir       string
	ProductID string
}

func (s *CalendarSink) Name() string { return "ics" }

func (s *CalendarSink) Path(year int) string {
	return filepath.Join(s.Dir, strconv.Itoa(year)+".ics")
}

func (s *CalendarSink) Put(ctx context.Context, year int, events []model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body := Render(year, events, s.ProductID)
	path := s.Path(year)
	if err := config.WriteFileAtomic(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	appLog.Info("season calendar written", "year", year, "path", path)
	return nil
}
