// Package progress defines the typed event stream pkgforge emits while
// resolving, placing, downloading, and installing, plus an optional
// websocket server for watching an install live.
package progress

import "fmt"

// EventType classifies a progress Event.
type EventType string

const (
	Resolving   EventType = "resolving"
	Placing     EventType = "placing"
	Downloading EventType = "downloading"
	Installing  EventType = "installing"
	Done        EventType = "done"
	Error       EventType = "error"
)

// Event is one step of an install's progress, reported through a
// Reporter callback the same way the teacher's Orchestrator/Uploader
// took ProgressCallback/LogCallback fields.
type Event struct {
	Type    EventType `json:"type"`
	Name    string    `json:"name,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Percent int       `json:"percent,omitempty"`
	Err     error     `json:"-"`
}

// Reporter receives Events as they happen. A nil Reporter is valid —
// every caller in this module checks for nil before invoking one.
type Reporter func(Event)

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Name, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s %s", e.Type, e.Name, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Name)
}

// NewResolvingEvent reports that the builder is resolving name against
// a range.
func NewResolvingEvent(name, rangeSpec string) Event {
	return Event{Type: Resolving, Name: name, Detail: rangeSpec}
}

// NewPlacingEvent reports a placement decision for name.
func NewPlacingEvent(name, decision string) Event {
	return Event{Type: Placing, Name: name, Detail: decision}
}

// NewDownloadingEvent reports download progress for name as a percent
// of its tarball's total bytes.
func NewDownloadingEvent(name string, percent int) Event {
	return Event{Type: Downloading, Name: name, Percent: percent}
}

// NewInstallingEvent reports that name's tarball is being extracted and
// linked onto disk.
func NewInstallingEvent(name string) Event {
	return Event{Type: Installing, Name: name}
}

// NewDoneEvent reports that the whole operation finished successfully.
func NewDoneEvent(message string) Event {
	return Event{Type: Done, Detail: message}
}

// NewErrorEvent reports a fatal error for name.
func NewErrorEvent(name string, err error) Event {
	return Event{Type: Error, Name: name, Err: err}
}
