package schedule

import (
	"encoding/json"
	"strconv"
	"testing"
)

// fixtureRound is a convenient way to write one round of a raw document.
// A nil entry in Sessions/Dates encodes as JSON null.
type fixtureRound struct {
	Name     string
	Country  string
	Round    int
	Offset   string
	Sessions [MaxSessions]*string
	Dates    [MaxSessions]*string
}

func str(s string) *string { return &s }

// buildDocument renders rounds in the index-keyed shape the source publishes.
func buildDocument(t *testing.T, rounds ...fixtureRound) []byte {
	t.Helper()
	doc := map[string]map[string]any{}
	for _, f := range Fields() {
		doc[f] = map[string]any{}
	}
	for i, r := range rounds {
		key := strconv.Itoa(i)
		doc[fieldEventName][key] = r.Name
		doc[fieldCountry][key] = r.Country
		doc[fieldRoundNumber][key] = r.Round
		doc[fieldGMTOffset][key] = r.Offset
		for n := 1; n <= MaxSessions; n++ {
			doc[sessionField(n)][key] = r.Sessions[n-1]
			doc[sessionDateField(n)][key] = r.Dates[n-1]
		}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func bahrain() fixtureRound {
	return fixtureRound{
		Name:    "Bahrain Grand Prix",
		Country: "Bahrain",
		Round:   1,
		Offset:  "+03:00",
		Sessions: [MaxSessions]*string{
			str("Practice 1"), str("Practice 2"), str("Practice 3"), str("Qualifying"), str("Race"),
		},
		Dates: [MaxSessions]*string{
			str("2026-02-11T10:00:00"), str("2026-02-11T14:00:00"), str("2026-02-12T11:30:00"),
			str("2026-02-12T15:00:00"), str("2026-02-13T18:00:00"),
		},
	}
}

func lasVegas() fixtureRound {
	return fixtureRound{
		Name:    "Las Vegas Grand Prix",
		Country: "United States",
		Round:   22,
		Offset:  "-08:00",
		Sessions: [MaxSessions]*string{
			str("Practice 1"), nil, nil, str("Qualifying"), str("Race"),
		},
		Dates: [MaxSessions]*string{
			str("2026-11-19T18:30:00"), nil, nil, str("2026-11-20T22:00:00"), str("2026-11-21T22:00:00"),
		},
	}
}

func testing0() fixtureRound {
	return fixtureRound{
		Name:    "Pre-Season Testing",
		Country: "Bahrain",
		Round:   0,
		Offset:  "+03:00",
	}
}
