package midi

import (
	"testing"
)

func TestReducerInitialState(t *testing.T) {
	st, ok := Reducer(nil, struct{}{}).(*State)
	if !ok {
		t.Fatal("reducer did not return a *State")
	}
	if len(st.Devices) != 0 || len(st.ListeningDevices) != 0 {
		t.Errorf("initial state not empty: %+v", st)
	}
	if st.Devices == nil || st.ListeningDevices == nil {
		t.Error("initial slices should be empty, not nil")
	}
}

func TestReducerLastWriteWins(t *testing.T) {
	st := Reducer(nil, struct{}{}).(*State)

	first := []Device{{ID: "a", Type: TypeInput}}
	second := []Device{{ID: "b", Type: TypeOutput}}

	st = Reducer(st, ReceiveDeviceList{Devices: first}).(*State)
	st = Reducer(st, ReceiveDeviceList{Devices: second}).(*State)
	if len(st.Devices) != 1 || st.Devices[0].ID != "b" {
		t.Errorf("devices not replaced wholesale: %+v", st.Devices)
	}

	st = Reducer(st, SetListeningDevices{IDs: []string{"x"}}).(*State)
	st = Reducer(st, SetListeningDevices{IDs: []string{"y", "z"}}).(*State)
	if len(st.ListeningDevices) != 2 || st.ListeningDevices[0] != "y" {
		t.Errorf("listening devices not replaced wholesale: %v", st.ListeningDevices)
	}
	// the other field survived
	if len(st.Devices) != 1 || st.Devices[0].ID != "b" {
		t.Errorf("devices lost while setting listening: %+v", st.Devices)
	}
}

func TestReducerMessageActionsAreNoOps(t *testing.T) {
	st := Reducer(nil, struct{}{}).(*State)
	msg := Message{Data: []byte{0x90, 60, 127}, Timestamp: 5, Device: "a"}

	if got := Reducer(st, ReceiveMessage{Message: msg}).(*State); got != st {
		t.Error("ReceiveMessage changed state identity")
	}
	if got := Reducer(st, SendMessage{Message: msg}).(*State); got != st {
		t.Error("SendMessage changed state identity")
	}
	if got := Reducer(st, "unknown").(*State); got != st {
		t.Error("unknown action changed state identity")
	}
}
