package session

// EventKind identifies a session notification.
type EventKind int

const (
	EventRecordingStarted EventKind = iota + 1
	EventProcessing
	EventNoAudio
	EventDeviceError
	EventEmptyTranscript
	EventAborted
	EventDone
	EventLogFailed
	EventIdle
	EventSafeExit
)

var eventNames = map[EventKind]string{
	EventRecordingStarted: "recording_started",
	EventProcessing:       "processing",
	EventNoAudio:          "no_audio",
	EventDeviceError:      "device_error",
	EventEmptyTranscript:  "empty_transcript",
	EventAborted:          "aborted",
	EventDone:             "done",
	EventLogFailed:        "log_failed",
	EventIdle:             "idle",
	EventSafeExit:         "safe_exit",
}

func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event is a state-change notification. Events for one utterance are
// delivered in order from the session's event loop.
type Event struct {
	Kind    EventKind
	Profile string
	Text    string
	Err     error
}

// Notifier receives events. Notify runs on the event loop and must not block.
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc adapts a func to Notifier.
type NotifierFunc func(ev Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }
