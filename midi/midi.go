// Package midi adapts MIDI device discovery and message I/O to a store:
// connected devices are mirrored into state, the application declares
// which inputs it listens to, inbound messages arrive as dispatched
// actions and outbound messages are dispatched as actions too.
//
// The actual hardware access sits behind the Access interfaces below.
// Backends (gomidi, loopback) are not imported here, so this package
// builds and tests without any driver present.
package midi

import "errors"

// Device type strings reported in descriptors.
const (
	TypeInput  = "input"
	TypeOutput = "output"
)

// Device is a snapshot copy of one device's identity and metadata,
// immutable once dispatched. Identity is ID, unique among currently
// connected devices and stable for the device's connected lifetime.
type Device struct {
	ID           string `json:"id"`
	Manufacturer string `json:"manufacturer"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Version      string `json:"version"`
	State        string `json:"state"`
	Connection   string `json:"connection"`
}

// Message is one MIDI message in transit: raw payload bytes, a timestamp
// in milliseconds and the device it came from or goes to.
type Message struct {
	Data      []byte  `json:"data"`
	Timestamp float64 `json:"timestamp"`
	Device    string  `json:"device"`
}

// Event is a raw inbound event as a backend delivers it. Hosts disagree
// on where the timestamp lives, so all known fields are carried and
// NormalizeTimestamp picks one.
type Event struct {
	Data         []byte
	ReceivedTime *float64 // host receive time, preferred
	TimeStamp    *float64 // high-resolution event time
	Timestamp    *float64 // legacy field
}

// NormalizeTimestamp resolves the timestamp of a raw event: ReceivedTime
// wins, then TimeStamp, then the legacy Timestamp, else zero.
func NormalizeTimestamp(e Event) float64 {
	switch {
	case e.ReceivedTime != nil:
		return *e.ReceivedTime
	case e.TimeStamp != nil:
		return *e.TimeStamp
	case e.Timestamp != nil:
		return *e.Timestamp
	}
	return 0
}

// Options are passed through to the access request untouched.
type Options struct {
	// Sysex asks the backend to deliver system-exclusive payloads too.
	Sysex bool `json:"sysex"`
}

// Access is the resolved capability handle granting enumeration of and
// I/O with MIDI devices. Implemented by backends.
type Access interface {
	Inputs() []Input
	Outputs() []Output
	// SetStateChangeHandler registers the callback fired whenever the
	// set of connected devices may have changed.
	SetStateChangeHandler(func())
}

// Input is one connected input device.
type Input interface {
	Descriptor() Device
	// Subscribe attaches the message callback and returns the handle
	// that detaches it again.
	Subscribe(func(Event)) (stop func(), err error)
}

// Output is one connected output device.
type Output interface {
	Descriptor() Device
	Send(data []byte, timestamp float64) error
}

// RequestAccessFunc asks the platform for an access handle. Called at
// most once per attempt, from its own goroutine; it may block.
type RequestAccessFunc func(Options) (Access, error)

// ErrAccessUnavailable is returned when no hardware access entry point
// exists on this host.
var ErrAccessUnavailable = errors.New("midi access not available")
