package events

import (
	"time"

	"github.com/dmitrymomot/flagsync/pkg/user"
)

// Event is anything the processor can deliver. Events are immutable once
// built.
type Event interface {
	EventKind() string
}

// Kinds as they appear on the wire.
const (
	KindIdentify = "identify"
	KindCustom   = "custom"
	KindFeature  = "feature"
	KindDebug    = "debug"
	KindSummary  = "summary"
)

type base struct {
	Kind         string     `json:"kind"`
	CreationDate int64      `json:"creationDate"`
	Key          string     `json:"key"`
	User         *user.User `json:"user,omitempty"`
	UserKey      string     `json:"userKey,omitempty"`
}

// EventKind returns the wire kind of the event.
func (b base) EventKind() string { return b.Kind }

func newBase(kind, key string, u user.User, inline bool, now time.Time) base {
	b := base{Kind: kind, CreationDate: now.UnixMilli(), Key: key}
	if inline {
		b.User = &u
	} else {
		b.UserKey = u.Key
	}
	return b
}

// IdentifyEvent announces the current user. It always carries the full
// user.
type IdentifyEvent struct {
	base
}

// NewIdentifyEvent records that u became the current user.
func NewIdentifyEvent(u user.User, now time.Time) IdentifyEvent {
	return IdentifyEvent{base: newBase(KindIdentify, u.Key, u, true, now)}
}

// CustomEvent is recorded by Track.
type CustomEvent struct {
	base
	Data        any      `json:"data,omitempty"`
	MetricValue *float64 `json:"metricValue,omitempty"`
}

// NewCustomEvent builds a track event. The user is inlined when inline is set,
// otherwise only its key is sent.
func NewCustomEvent(key string, u user.User, data any, metric *float64, inline bool, now time.Time) CustomEvent {
	return CustomEvent{
		base:        newBase(KindCustom, key, u, inline, now),
		Data:        data,
		MetricValue: metric,
	}
}

// FeatureEvent records one evaluation in full. A DebugEvent has the same
// shape with kind "debug" and always inlines the user.
type FeatureEvent struct {
	base
	Value     any            `json:"value"`
	Default   any            `json:"default"`
	Version   *int           `json:"version,omitempty"`
	Variation *int           `json:"variation,omitempty"`
	Reason    map[string]any `json:"reason,omitempty"`
}

// Evaluation is the outcome of reading one flag.
type Evaluation struct {
	FlagKey   string
	Value     any
	Default   any
	Version   *int
	Variation *int
	Reason    map[string]any
}

// NewFeatureEvent builds a full evaluation event for a tracked flag.
func NewFeatureEvent(ev Evaluation, u user.User, inline bool, now time.Time) FeatureEvent {
	return FeatureEvent{
		base:      newBase(KindFeature, ev.FlagKey, u, inline, now),
		Value:     ev.Value,
		Default:   ev.Default,
		Version:   ev.Version,
		Variation: ev.Variation,
		Reason:    ev.Reason,
	}
}

// NewDebugEvent builds a debug evaluation event. Debug events always inline
// the user.
func NewDebugEvent(ev Evaluation, u user.User, now time.Time) FeatureEvent {
	e := NewFeatureEvent(ev, u, true, now)
	e.Kind = KindDebug
	return e
}
