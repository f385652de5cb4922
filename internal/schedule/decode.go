package schedule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// MaxSessions is the number of session slots per round in the raw data.
const MaxSessions = 5

const (
	fieldEventName   = "event_name"
	fieldCountry     = "country"
	fieldRoundNumber = "round_number"
	fieldGMTOffset   = "gmt_offset"
)

// RawSession is one session slot as published: a name and a naive local date.
type RawSession struct {
	Name string
	Date string
}

// RawRound is one index of the record-of-arrays document.
type RawRound struct {
	Index       int
	EventName   string
	Country     string
	RoundNumber int
	GMTOffset   string
	Sessions    [MaxSessions]RawSession

	// Missing lists "field[index]" keys absent for this round.
	Missing []string
}

// Complete reports whether every field had an entry for this round.
func (r RawRound) Complete() bool { return len(r.Missing) == 0 }

func sessionField(n int) string     { return "session" + strconv.Itoa(n) }
func sessionDateField(n int) string { return "session" + strconv.Itoa(n) + "_date" }

// Fields returns every top-level field a schedule document must carry.
func Fields() []string {
	out := []string{fieldEventName, fieldCountry, fieldRoundNumber, fieldGMTOffset}
	for n := 1; n <= MaxSessions; n++ {
		out = append(out, sessionField(n), sessionDateField(n))
	}
	return out
}

const schemaRef = "racesched://raw-schedule.json"

var (
	schemaOnce sync.Once
	schemaVal  *jsonschema.Schema
	schemaErr  error
)

// documentSchema describes the shape of a raw schedule document: each field
// is an object keyed by round index.
func documentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		nullableString := map[string]any{"type": []string{"string", "null"}}
		indexed := func(values map[string]any) map[string]any {
			return map[string]any{
				"type":                 "object",
				"propertyNames":        map[string]any{"pattern": "^[0-9]+$"},
				"additionalProperties": values,
			}
		}

		props := map[string]any{
			fieldEventName: indexed(nullableString),
			fieldCountry:   indexed(nullableString),
			fieldRoundNumber: indexed(map[string]any{
				"type":    []string{"integer", "string"},
				"pattern": "^-?[0-9]+$",
			}),
			fieldGMTOffset: indexed(nullableString),
		}
		for n := 1; n <= MaxSessions; n++ {
			props[sessionField(n)] = indexed(nullableString)
			props[sessionDateField(n)] = indexed(nullableString)
		}

		raw, err := json.Marshal(map[string]any{
			"$schema":    "https://json-schema.org/draft/2020-12/schema",
			"type":       "object",
			"required":   Fields(),
			"properties": props,
		})
		if err != nil {
			schemaErr = err
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaRef, bytes.NewReader(raw)); err != nil {
			schemaErr = err
			return
		}
		schemaVal, schemaErr = c.Compile(schemaRef)
	})
	return schemaVal, schemaErr
}

// Decode turns a raw schedule document into one RawRound per index of
// round_number, in increasing index order. Keys absent for a round are
// recorded on that round rather than failing the whole document; a missing
// top-level field does fail it.
func Decode(body []byte) ([]RawRound, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedDocument)
	}

	if err := validateDocument(body); err != nil {
		return nil, err
	}

	fields := make(map[string]gjson.Result, len(Fields()))
	for _, f := range Fields() {
		fields[f] = gjson.GetBytes(body, f)
	}

	count := 0
	fields[fieldRoundNumber].ForEach(func(_, _ gjson.Result) bool {
		count++
		return true
	})

	rounds := make([]RawRound, 0, count)
	for i := 0; i < count; i++ {
		key := strconv.Itoa(i)
		r := RawRound{Index: i}

		lookup := func(field string) gjson.Result {
			v := fields[field].Get(key)
			if !v.Exists() {
				r.Missing = append(r.Missing, field+"["+key+"]")
			}
			return v
		}

		r.EventName = lookup(fieldEventName).String()
		r.Country = lookup(fieldCountry).String()
		r.RoundNumber = int(lookup(fieldRoundNumber).Int())
		r.GMTOffset = lookup(fieldGMTOffset).String()
		for n := 1; n <= MaxSessions; n++ {
			r.Sessions[n-1] = RawSession{
				Name: lookup(sessionField(n)).String(),
				Date: lookup(sessionDateField(n)).String(),
			}
		}

		rounds = append(rounds, r)
	}

	return rounds, nil
}

func validateDocument(body []byte) error {
	schema, err := documentSchema()
	if err != nil {
		return fmt.Errorf("compile schedule schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	verr := schema.Validate(doc)
	if verr == nil {
		return nil
	}

	// Report an absent or non-object field as a missing field; anything
	// else is a shape problem with the document as a whole.
	if _, ok := doc.(map[string]any); ok {
		for _, f := range Fields() {
			if v := gjson.GetBytes(body, f); !v.Exists() || !v.IsObject() {
				return &FieldError{Field: f, Index: -1}
			}
		}
	}

	var ve *jsonschema.ValidationError
	if errors.As(verr, &ve) {
		return fmt.Errorf("%w: %s", ErrMalformedDocument, strings.TrimSpace(leafMessage(ve)))
	}
	return fmt.Errorf("%w: %v", ErrMalformedDocument, verr)
}

// leafMessage returns the most specific cause of a validation failure.
func leafMessage(ve *jsonschema.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if ve.InstanceLocation == "" {
		return ve.Message
	}
	return ve.InstanceLocation + ": " + ve.Message
}
