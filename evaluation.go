package flagsync

import (
	"reflect"

	"github.com/dmitrymomot/flagsync/pkg/events"
	"github.com/dmitrymomot/flagsync/pkg/flagstore"
	"github.com/dmitrymomot/flagsync/pkg/logger"
)

// ErrorKind explains why an evaluation returned the fallback value.
type ErrorKind string

const (
	ErrorFlagNotFound   ErrorKind = "FLAG_NOT_FOUND"
	ErrorClientNotReady ErrorKind = "CLIENT_NOT_READY"
	ErrorWrongType      ErrorKind = "WRONG_TYPE"
)

// EvaluationDetail is the result of VariationDetail. Reason is the
// server-provided reason, or {"kind": "ERROR", "errorKind": ...} when the
// fallback was used because of an error.
type EvaluationDetail struct {
	Value          any
	VariationIndex *int
	Reason         map[string]any
}

// ErrorKind returns the error kind of the reason, or "" when there is none.
func (d EvaluationDetail) ErrorKind() ErrorKind {
	if d.Reason == nil || d.Reason["kind"] != "ERROR" {
		return ""
	}
	k, _ := d.Reason["errorKind"].(string)
	return ErrorKind(k)
}

func errorDetail(kind ErrorKind, fallback any) EvaluationDetail {
	return EvaluationDetail{
		Value:  fallback,
		Reason: map[string]any{"kind": "ERROR", "errorKind": string(kind)},
	}
}

// Variation returns the value of flag key for the current user, or
// fallback when the flag is missing or of a different type than fallback.
func (e *Environment) Variation(key string, fallback any) any {
	return e.evaluate(key, fallback, false).Value
}

// VariationDetail is Variation with the reason and variation index.
func (e *Environment) VariationDetail(key string, fallback any) EvaluationDetail {
	return e.evaluate(key, fallback, true)
}

func (e *Environment) evaluate(key string, fallback any, withReason bool) EvaluationDetail {
	flag, found := e.store.GetFlag(key)

	var detail EvaluationDetail
	switch {
	case !found:
		kind := ErrorFlagNotFound
		if !e.IsInitialized() {
			kind = ErrorClientNotReady
		}
		e.logger.Debug("flag not found, returning fallback", logger.FlagKey(key))
		detail = errorDetail(kind, fallback)
	case flag.Value == nil:
		detail = EvaluationDetail{Value: fallback, VariationIndex: flag.Variation, Reason: flag.Reason}
	case !sameKind(flag.Value, fallback):
		e.logger.Warn("flag has a different type than the fallback", logger.FlagKey(key))
		detail = errorDetail(ErrorWrongType, fallback)
	default:
		detail = EvaluationDetail{Value: flag.Value, VariationIndex: flag.Variation, Reason: flag.Reason}
	}

	e.record(key, flag, found, detail, fallback, withReason || e.cfg.EvaluationReasons)
	return detail
}

// record counts the evaluation in the summary and, for tracked flags or
// open debug windows, enqueues a full event.
func (e *Environment) record(key string, flag flagstore.Flag, found bool, detail EvaluationDetail, fallback any, withReason bool) {
	ev := events.Evaluation{FlagKey: key, Value: detail.Value, Default: fallback}
	if found {
		v := flag.VersionForEvents()
		ev.Version = &v
		ev.Variation = flag.Variation
	}
	e.events.Summarize(ev)
	if !found {
		return
	}
	if withReason {
		ev.Reason = detail.Reason
	}

	u, _ := e.ident.get()
	now := e.now()
	if flag.TrackEvents {
		e.events.Enqueue(events.NewFeatureEvent(ev, u, e.cfg.InlineUsersInEvents, now))
		return
	}
	if until, ok := flag.DebugUntil(); ok && e.events.DebugWindowOpen(until) {
		e.events.Enqueue(events.NewDebugEvent(ev, u, now))
	}
}

type valueKind int

const (
	kindOther valueKind = iota
	kindBool
	kindNumber
	kindString
	kindObject
	kindArray
)

func kindOf(v any) valueKind {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Bool:
		return kindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return kindNumber
	case reflect.String:
		return kindString
	case reflect.Map, reflect.Struct:
		return kindObject
	case reflect.Slice, reflect.Array:
		return kindArray
	default:
		return kindOther
	}
}

// sameKind compares JSON kinds. A nil fallback accepts any value.
func sameKind(value, fallback any) bool {
	if fallback == nil {
		return true
	}
	return kindOf(value) == kindOf(fallback)
}
