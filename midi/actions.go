package midi

import (
	"github.com/midibridge/midid-go/store"
)

// DefaultStateKey is where the reducer is mounted unless configured
// otherwise.
const DefaultStateKey = "midi"

// State is the slice of store state owned by this package. Both fields
// are replaced wholesale, never merged; the middleware reconciles
// ListeningDevices against Devices opportunistically.
type State struct {
	Devices          []Device `json:"devices"`
	ListeningDevices []string `json:"listeningDevices"`
}

// ReceiveDeviceList replaces State.Devices. Dispatched by the input
// middleware whenever the connected device set changes.
type ReceiveDeviceList struct {
	Devices []Device
}

// SetListeningDevices replaces State.ListeningDevices. Dispatched by the
// application; only IDs of input devices are meaningful, unknown IDs are
// inert until such a device appears.
type SetListeningDevices struct {
	IDs []string
}

// ReceiveMessage carries one inbound message from a listened device.
// Dispatched by the input middleware; a no-op at the reducer level.
type ReceiveMessage struct {
	Message Message
}

// SendMessage asks the output middleware to forward one message to an
// output device. A no-op at the reducer level.
type SendMessage struct {
	Message Message
}

// Reducer is the pure state transition. Unknown actions pass state
// through unchanged (same pointer, so observers see no change).
func Reducer(slice interface{}, action store.Action) interface{} {
	st, _ := slice.(*State)
	if st == nil {
		st = &State{Devices: []Device{}, ListeningDevices: []string{}}
	}
	switch a := action.(type) {
	case ReceiveDeviceList:
		return &State{Devices: a.Devices, ListeningDevices: st.ListeningDevices}
	case SetListeningDevices:
		return &State{Devices: st.Devices, ListeningDevices: a.IDs}
	}
	return st
}
