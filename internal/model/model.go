package model

import (
	"bytes"
	"errors"
	"time"
)

// TimestampLayout is the naive layout used for every serialized timestamp.
// The trailing 'Z' is appended literally, not produced by the formatter.
const TimestampLayout = "2006-01-02T15:04:05"

// Timestamp is a UTC instant serialized as "YYYY-MM-DDTHH:MM:SSZ".
type Timestamp struct {
	time.Time
}

// NewTimestamp drops any location and sub-second part from t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Second)}
}

func (ts Timestamp) String() string {
	return ts.UTC().Format(TimestampLayout) + "Z"
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + ts.String() + `"`), nil
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*ts = Timestamp{}
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("timestamp: expected JSON string")
	}
	s := string(data[1 : len(data)-1])
	if len(s) == 0 || s[len(s)-1] != 'Z' {
		return errors.New("timestamp: missing Z suffix")
	}
	t, err := time.Parse(TimestampLayout, s[:len(s)-1])
	if err != nil {
		return err
	}
	ts.Time = t
	return nil
}

// Session is one timed slot of an event, already normalized to UTC.
type Session struct {
	// SessionNumber is the 1..5 slot label; serialized as a string.
	SessionNumber int       `json:"sessionNumber,string"`
	Kind          string    `json:"kind"`
	Start         Timestamp `json:"start"`
	End           Timestamp `json:"end"`
}

// Event is a normalized round. Field order matches the published JSON.
type Event struct {
	Name        string `json:"name"`
	CountryName string `json:"countryName"`
	// CountryKey is reserved for a country lookup and is never populated.
	CountryKey  *string   `json:"countryKey"`
	RoundNumber int       `json:"roundNumber"`
	Start       Timestamp `json:"start"`
	End         Timestamp `json:"end"`
	GMTOffset   string    `json:"gmt_offset"`
	Sessions    []Session `json:"sessions"`
	// Over is reserved and always false.
	Over bool `json:"over"`
}
