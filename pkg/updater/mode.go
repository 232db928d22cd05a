package updater

// Mode selects how a Processor learns about flag changes.
type Mode int

const (
	// ModeStreaming keeps an event-stream connection open while in the
	// foreground and resynchronizes on every message.
	ModeStreaming Mode = iota
	// ModePolling refetches on a fixed interval.
	ModePolling
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeStreaming:
		return "streaming"
	case ModePolling:
		return "polling"
	default:
		return "unknown"
	}
}
