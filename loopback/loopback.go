// Package loopback is an in-memory midi.Access implementation: devices
// are added and removed programmatically, inputs deliver whatever is
// emitted on them and outputs record what was sent. It backs the tests
// and lets the daemon run in environments with no MIDI hardware.
package loopback

import (
	"sync"

	"github.com/midibridge/midid-go/midi"
)

type Access struct {
	mutex    sync.Mutex
	inputs   []*Input
	outputs  []*Output
	onChange func()
}

func New() *Access {
	return &Access{}
}

func (a *Access) Inputs() []midi.Input {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	ins := make([]midi.Input, len(a.inputs))
	for i, in := range a.inputs {
		ins[i] = in
	}
	return ins
}

func (a *Access) Outputs() []midi.Output {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	outs := make([]midi.Output, len(a.outputs))
	for i, out := range a.outputs {
		outs[i] = out
	}
	return outs
}

func (a *Access) SetStateChangeHandler(fn func()) {
	a.mutex.Lock()
	a.onChange = fn
	a.mutex.Unlock()
}

// AddInput connects a virtual input device. The descriptor's Type is
// forced to input.
func (a *Access) AddInput(dev midi.Device) *Input {
	dev.Type = midi.TypeInput
	in := &Input{dev: dev}
	a.mutex.Lock()
	a.inputs = append(a.inputs, in)
	a.mutex.Unlock()
	a.notify()
	return in
}

// AddOutput connects a virtual output device. The descriptor's Type is
// forced to output.
func (a *Access) AddOutput(dev midi.Device) *Output {
	dev.Type = midi.TypeOutput
	out := &Output{dev: dev}
	a.mutex.Lock()
	a.outputs = append(a.outputs, out)
	a.mutex.Unlock()
	a.notify()
	return out
}

// Remove disconnects the device with the given id, if connected.
func (a *Access) Remove(id string) {
	a.mutex.Lock()
	for i, in := range a.inputs {
		if in.dev.ID == id {
			a.inputs = append(a.inputs[:i], a.inputs[i+1:]...)
			break
		}
	}
	for i, out := range a.outputs {
		if out.dev.ID == id {
			a.outputs = append(a.outputs[:i], a.outputs[i+1:]...)
			break
		}
	}
	a.mutex.Unlock()
	a.notify()
}

// Pair connects a wired input/output couple named <name>-in/<name>-out:
// everything sent to the output re-enters as an event on the input.
func (a *Access) Pair(name string) (*Input, *Output) {
	in := a.AddInput(midi.Device{
		ID:           name + "-in",
		Name:         name + " loopback in",
		Manufacturer: "loopback",
		State:        "connected",
	})
	out := a.AddOutput(midi.Device{
		ID:           name + "-out",
		Name:         name + " loopback out",
		Manufacturer: "loopback",
		State:        "connected",
	})
	out.mutex.Lock()
	out.wire = in
	out.mutex.Unlock()
	return in, out
}

func (a *Access) notify() {
	a.mutex.Lock()
	fn := a.onChange
	a.mutex.Unlock()
	if fn != nil {
		fn()
	}
}

type Input struct {
	mutex   sync.Mutex
	dev     midi.Device
	token   int
	handler func(midi.Event)
}

func (i *Input) Descriptor() midi.Device {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.dev
}

// Subscribe installs the message callback. There is one callback slot, a
// later Subscribe replaces an earlier one; stopping a replaced
// subscription is a no-op.
func (i *Input) Subscribe(fn func(midi.Event)) (func(), error) {
	i.mutex.Lock()
	i.token++
	token := i.token
	i.handler = fn
	i.mutex.Unlock()

	stop := func() {
		i.mutex.Lock()
		if i.token == token {
			i.handler = nil
		}
		i.mutex.Unlock()
	}
	return stop, nil
}

// Emit delivers a raw event to the current subscriber, if any.
func (i *Input) Emit(ev midi.Event) {
	i.mutex.Lock()
	fn := i.handler
	i.mutex.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Subscribed reports whether a message callback is attached.
func (i *Input) Subscribed() bool {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.handler != nil
}

// SubscribeCount returns how many times Subscribe was called, for
// asserting that redundant listens attach nothing twice.
func (i *Input) SubscribeCount() int {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.token
}

type Output struct {
	mutex sync.Mutex
	dev   midi.Device
	sent  []midi.Message
	wire  *Input // paired input, nil unless created by Pair
}

func (o *Output) Descriptor() midi.Device {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.dev
}

func (o *Output) Send(data []byte, timestamp float64) error {
	msg := midi.Message{Data: data, Timestamp: timestamp, Device: o.dev.ID}
	o.mutex.Lock()
	o.sent = append(o.sent, msg)
	wire := o.wire
	o.mutex.Unlock()

	// deliver on a fresh goroutine the way a real driver's callback
	// arrives, so a paired send never re-enters the caller
	if wire != nil {
		ts := timestamp
		go wire.Emit(midi.Event{Data: data, TimeStamp: &ts})
	}
	return nil
}

// Sent returns a copy of everything sent to this output so far.
func (o *Output) Sent() []midi.Message {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	sent := make([]midi.Message, len(o.sent))
	copy(sent, o.sent)
	return sent
}
