package events

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// SummaryEvent aggregates evaluation counts over [StartDate, EndDate].
type SummaryEvent struct {
	Kind      string                 `json:"kind"`
	StartDate int64                  `json:"startDate"`
	EndDate   int64                  `json:"endDate"`
	Features  map[string]FlagSummary `json:"features"`
}

func (SummaryEvent) EventKind() string { return KindSummary }

// FlagSummary holds the counters of one flag in a summary event.
type FlagSummary struct {
	Default  any       `json:"default"`
	Counters []Counter `json:"counters"`
}

// Counter counts evaluations of one flag variation and version.
type Counter struct {
	Value     any  `json:"value"`
	Version   *int `json:"version,omitempty"`
	Variation *int `json:"variation,omitempty"`
	Count     int  `json:"count"`
	Unknown   bool `json:"unknown,omitempty"`
}

type counterKey struct {
	flag      string
	variation int
	version   int
}

type counter struct {
	value     any
	version   *int
	variation *int
	count     int
	unknown   bool
}

// Summarizer accumulates counters keyed by (flag, variation, version)
// until Snapshot takes and resets them. Safe for concurrent use.
type Summarizer struct {
	mu       sync.Mutex
	start    time.Time
	end      time.Time
	counters map[counterKey]*counter
	defaults map[string]any
}

// NewSummarizer returns a Summarizer with an empty window.
func NewSummarizer() *Summarizer {
	return &Summarizer{
		counters: map[counterKey]*counter{},
		defaults: map[string]any{},
	}
}

// Record counts one evaluation. A nil Version marks a flag unknown to the
// store.
func (s *Summarizer) Record(ev Evaluation, now time.Time) {
	key := counterKey{flag: ev.FlagKey, variation: -1, version: -1}
	if ev.Variation != nil {
		key.variation = *ev.Variation
	}
	if ev.Version != nil {
		key.version = *ev.Version
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.start.IsZero() || now.Before(s.start) {
		s.start = now
	}
	if now.After(s.end) {
		s.end = now
	}
	s.defaults[ev.FlagKey] = ev.Default

	c, ok := s.counters[key]
	if !ok {
		c = &counter{
			value:     ev.Value,
			version:   ev.Version,
			variation: ev.Variation,
			unknown:   ev.Version == nil,
		}
		s.counters[key] = c
	}
	c.count++
}

// Empty reports whether nothing was recorded since the last Snapshot.
func (s *Summarizer) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters) == 0
}

// Snapshot returns the accumulated summary and starts a new window.
// ok is false when nothing was recorded.
func (s *Summarizer) Snapshot() (SummaryEvent, bool) {
	s.mu.Lock()
	counters, defaults := s.counters, s.defaults
	start, end := s.start, s.end
	s.counters = map[counterKey]*counter{}
	s.defaults = map[string]any{}
	s.start, s.end = time.Time{}, time.Time{}
	s.mu.Unlock()

	if len(counters) == 0 {
		return SummaryEvent{}, false
	}

	features := make(map[string]FlagSummary, len(defaults))
	for k, c := range counters {
		fs := features[k.flag]
		fs.Default = defaults[k.flag]
		fs.Counters = append(fs.Counters, Counter{
			Value:     c.value,
			Version:   c.version,
			Variation: c.variation,
			Count:     c.count,
			Unknown:   c.unknown,
		})
		features[k.flag] = fs
	}
	for k, fs := range features {
		slices.SortFunc(fs.Counters, func(a, b Counter) int {
			return cmp.Or(
				cmp.Compare(deref(a.Version), deref(b.Version)),
				cmp.Compare(deref(a.Variation), deref(b.Variation)),
			)
		})
		features[k] = fs
	}

	return SummaryEvent{
		Kind:      KindSummary,
		StartDate: start.UnixMilli(),
		EndDate:   end.UnixMilli(),
		Features:  features,
	}, true
}

func deref(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}
