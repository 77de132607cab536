package app

import (
	"fmt"
	"time"

	"dictate/internal/indicator"
	"dictate/internal/notify"
	"dictate/internal/session"
)

// micErrorLinger is how long MIC ERROR stays up.
const micErrorLinger = 2 * time.Second

type display interface {
	Show(state indicator.State, text string)
	Hide()
	HideAfter(d time.Duration)
}

type sounder interface {
	Play(s notify.Sound)
	Toast(message string)
}

// feedback turns session events into indicator commands, tones and toasts.
// Both sinks only enqueue, so Notify never blocks the event loop.
type feedback struct {
	display display
	sound   sounder
}

func (f *feedback) Notify(ev session.Event) {
	switch ev.Kind {
	case session.EventRecordingStarted:
		f.display.Show(indicator.StateRecording, fmt.Sprintf("Listening (%s)", ev.Profile))
		f.sound.Play(notify.SoundStart)
		f.sound.Toast("Recording started (" + ev.Profile + ")")
	case session.EventProcessing:
		f.display.Show(indicator.StateProcessing, "Processing...")
		f.sound.Play(notify.SoundStop)
	case session.EventNoAudio:
		f.display.Hide()
		f.sound.Toast("No audio captured")
	case session.EventDeviceError:
		f.display.Show(indicator.StateError, "MIC ERROR")
		f.display.HideAfter(micErrorLinger)
		f.sound.Play(notify.SoundError)
		f.sound.Toast("Microphone unavailable")
	case session.EventEmptyTranscript:
		f.display.Show(indicator.StateError, "No speech")
		f.sound.Play(notify.SoundError)
	case session.EventAborted:
		f.display.Show(indicator.StateError, "Request failed")
		f.sound.Play(notify.SoundError)
		f.sound.Toast("Request failed")
	case session.EventDone:
		f.display.Show(indicator.StateDone, "Done...")
		f.sound.Play(notify.SoundSuccess)
	case session.EventLogFailed:
		f.sound.Toast("History write failed")
	case session.EventIdle, session.EventSafeExit:
		f.display.Hide()
	}
}
