// Package gomidi adapts a registered gitlab.com/gomidi/midi/v2 driver to
// the midi.Access contract. Which driver that is gets decided by the
// binary: importing e.g. the rtmidi driver package registers it.
package gomidi

import (
	"fmt"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/midibridge/midid-go/midi"
)

// drivers expose no hotplug callback, so connected ports are polled at
// the same cadence the device long-poll uses.
const pollInterval = 500 * time.Millisecond

// RequestAccess is the platform entry point handed to midi.Config. It
// fails with midi.ErrAccessUnavailable when no driver is registered.
func RequestAccess(opts midi.Options) (midi.Access, error) {
	drv := drivers.Get()
	if drv == nil {
		return nil, midi.ErrAccessUnavailable
	}
	return &access{driver: drv, opts: opts}, nil
}

type access struct {
	driver drivers.Driver
	opts   midi.Options

	mutex    sync.Mutex
	onChange func()
	watching bool
}

func (a *access) Inputs() []midi.Input {
	ins, err := a.driver.Ins()
	if err != nil {
		return nil
	}
	wrapped := make([]midi.Input, 0, len(ins))
	for _, in := range ins {
		wrapped = append(wrapped, &input{port: in, sysex: a.opts.Sysex})
	}
	return wrapped
}

func (a *access) Outputs() []midi.Output {
	outs, err := a.driver.Outs()
	if err != nil {
		return nil
	}
	wrapped := make([]midi.Output, 0, len(outs))
	for _, out := range outs {
		wrapped = append(wrapped, &output{port: out})
	}
	return wrapped
}

func (a *access) SetStateChangeHandler(fn func()) {
	a.mutex.Lock()
	a.onChange = fn
	start := fn != nil && !a.watching
	if start {
		a.watching = true
	}
	a.mutex.Unlock()

	if start {
		go a.watch()
	}
}

// watch fires the change handler whenever the enumerated port set
// differs from the last poll. It runs for the process lifetime; there is
// no teardown path for the access handle.
func (a *access) watch() {
	last := a.portIDs()
	for range time.Tick(pollInterval) {
		ids := a.portIDs()
		if stringsEqual(ids, last) {
			continue
		}
		last = ids
		a.mutex.Lock()
		fn := a.onChange
		a.mutex.Unlock()
		if fn != nil {
			fn()
		}
	}
}

func (a *access) portIDs() []string {
	var ids []string
	if ins, err := a.driver.Ins(); err == nil {
		for _, in := range ins {
			ids = append(ids, portID("in", in))
		}
	}
	if outs, err := a.driver.Outs(); err == nil {
		for _, out := range outs {
			ids = append(ids, portID("out", out))
		}
	}
	return ids
}

// portID builds the stable device id of one port. Driver port numbers
// are stable while the port stays connected, which matches what the
// descriptor contract asks for.
func portID(kind string, p drivers.Port) string {
	return fmt.Sprintf("%s-%d", kind, p.Number())
}

func describe(kind, typ string, p drivers.Port) midi.Device {
	connection := "closed"
	if p.IsOpen() {
		connection = "open"
	}
	return midi.Device{
		ID:         portID(kind, p),
		Name:       p.String(),
		Type:       typ,
		State:      "connected",
		Connection: connection,
	}
}

type input struct {
	port  drivers.In
	sysex bool
}

func (i *input) Descriptor() midi.Device {
	return describe("in", midi.TypeInput, i.port)
}

func (i *input) Subscribe(fn func(midi.Event)) (func(), error) {
	if !i.port.IsOpen() {
		if err := i.port.Open(); err != nil {
			return nil, err
		}
	}
	return i.port.Listen(func(data []byte, milliseconds int32) {
		ts := float64(milliseconds)
		fn(midi.Event{Data: data, TimeStamp: &ts})
	}, drivers.ListenConfig{SysEx: i.sysex})
}

type output struct {
	port drivers.Out
}

func (o *output) Descriptor() midi.Device {
	return describe("out", midi.TypeOutput, o.port)
}

// Send writes immediately; drivers take no scheduling timestamp, so the
// envelope's timestamp is informational only.
func (o *output) Send(data []byte, _ float64) error {
	if !o.port.IsOpen() {
		if err := o.port.Open(); err != nil {
			return err
		}
	}
	return o.port.Send(data)
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
