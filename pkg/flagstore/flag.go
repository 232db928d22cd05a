package flagstore

import (
	"reflect"
	"time"
)

// Flag is one evaluated flag as delivered by the backend. A Flag is never
// mutated after it enters a store; updates replace it.
type Flag struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	// Version changes on every server-side change to the flag's evaluation.
	Version int `json:"version"`
	// FlagVersion, when present, is the version reported in events.
	FlagVersion *int `json:"flagVersion,omitempty"`
	Variation   *int `json:"variation,omitempty"`
	TrackEvents bool `json:"trackEvents,omitempty"`
	// DebugEventsUntilDate is a unix millisecond timestamp.
	DebugEventsUntilDate *int64         `json:"debugEventsUntilDate,omitempty"`
	Reason               map[string]any `json:"reason,omitempty"`
}

// VersionForEvents returns FlagVersion when set and Version otherwise.
func (f Flag) VersionForEvents() int {
	if f.FlagVersion != nil {
		return *f.FlagVersion
	}
	return f.Version
}

// DebugUntil returns the end of the debug window, if any.
func (f Flag) DebugUntil() (time.Time, bool) {
	if f.DebugEventsUntilDate == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*f.DebugEventsUntilDate), true
}

// sameEvaluation compares the fields that decide whether listeners care.
func sameEvaluation(a, b Flag) bool {
	return a.Version == b.Version &&
		intPtrEqual(a.Variation, b.Variation) &&
		reflect.DeepEqual(a.Value, b.Value)
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ChangeType says what happened to a key during a mutation.
type ChangeType string

const (
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
	ChangeNoOp   ChangeType = "NOOP"
)

// Change is one entry of a mutation result.
type Change struct {
	Key  string
	Type ChangeType
}
