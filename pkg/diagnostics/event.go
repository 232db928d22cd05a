package diagnostics

import (
	"runtime"
	"time"
)

const (
	KindInit       = "diagnostic-init"
	KindStatistics = "diagnostic"
)

// SDKInfo describes the library in the init event.
type SDKInfo struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	WrapperName    string `json:"wrapperName,omitempty"`
	WrapperVersion string `json:"wrapperVersion,omitempty"`
}

// PlatformInfo describes the runtime in the init event.
type PlatformInfo struct {
	Name      string `json:"name"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"osName"`
	Arch      string `json:"osArch"`
}

func currentPlatform() PlatformInfo {
	return PlatformInfo{Name: "Go", GoVersion: runtime.Version(), OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// InitEvent is sent once per new installation id.
type InitEvent struct {
	Kind          string       `json:"kind"`
	ID            ID           `json:"id"`
	CreationDate  int64        `json:"creationDate"`
	SDK           SDKInfo      `json:"sdk"`
	Configuration any          `json:"configuration,omitempty"`
	Platform      PlatformInfo `json:"platform"`
}

// StreamInit records one stream connection attempt.
type StreamInit struct {
	Timestamp      int64 `json:"timestamp"`
	DurationMillis int64 `json:"durationMillis"`
	Failed         bool  `json:"failed"`
}

// StatisticsEvent is sent every recording interval.
type StatisticsEvent struct {
	Kind              string       `json:"kind"`
	ID                ID           `json:"id"`
	CreationDate      int64        `json:"creationDate"`
	DataSinceDate     int64        `json:"dataSinceDate"`
	DroppedEvents     int64        `json:"droppedEvents"`
	EventsInLastBatch int64        `json:"eventsInLastBatch"`
	StreamInits       []StreamInit `json:"streamInits"`
}

func newInitEvent(id ID, sdk SDKInfo, configuration any, now time.Time) InitEvent {
	return InitEvent{
		Kind:          KindInit,
		ID:            id,
		CreationDate:  now.UnixMilli(),
		SDK:           sdk,
		Configuration: configuration,
		Platform:      currentPlatform(),
	}
}
