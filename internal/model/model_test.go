package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestampFormat(t *testing.T) {
	ts := NewTimestamp(time.Date(2026, 11, 22, 6, 0, 0, 500, time.UTC))
	if got := ts.String(); got != "2026-11-22T06:00:00Z" {
		t.Fatalf("String() = %q", got)
	}

	// A non-UTC location must still serialize as the UTC wall clock.
	loc := time.FixedZone("plus3", 3*3600)
	ts = NewTimestamp(time.Date(2026, 2, 11, 10, 0, 0, 0, loc))
	if got := ts.String(); got != "2026-02-11T07:00:00Z" {
		t.Fatalf("String() = %q", got)
	}
}

func TestTimestampUnmarshal(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"2026-03-06T01:30:00Z"`), &ts); err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 3, 6, 1, 30, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("got %v, want %v", ts.Time, want)
	}

	for _, bad := range []string{`"2026-03-06T01:30:00"`, `"2026-03-06T01:30:00+00:00"`, `12`} {
		if err := json.Unmarshal([]byte(bad), &ts); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", bad)
		}
	}
}

func TestEventFieldOrder(t *testing.T) {
	start := NewTimestamp(time.Date(2026, 2, 11, 7, 0, 0, 0, time.UTC))
	end := NewTimestamp(start.Add(time.Hour))
	ev := Event{
		Name:        "Bahrain Grand Prix",
		CountryName: "Bahrain",
		RoundNumber: 1,
		Start:       start,
		End:         end,
		GMTOffset:   "+03:00",
		Sessions:    []Session{{SessionNumber: 1, Kind: "Practice 1", Start: start, End: end}},
	}

	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"name":"Bahrain Grand Prix","countryName":"Bahrain","countryKey":null,"roundNumber":1,` +
		`"start":"2026-02-11T07:00:00Z","end":"2026-02-11T08:00:00Z","gmt_offset":"+03:00",` +
		`"sessions":[{"sessionNumber":"1","kind":"Practice 1","start":"2026-02-11T07:00:00Z","end":"2026-02-11T08:00:00Z"}],` +
		`"over":false}`
	if string(b) != want {
		t.Fatalf("json mismatch\n got: %s\nwant: %s", b, want)
	}

	var back Event
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back.Sessions[0].SessionNumber != 1 || !back.End.Equal(end.Time) {
		t.Fatalf("decoded event differs: %+v", back)
	}
}
