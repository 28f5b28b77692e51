package midi_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/midibridge/midid-go/loopback"
	"github.com/midibridge/midid-go/midi"
	"github.com/midibridge/midid-go/store"
)

// eventually polls cond until it holds or the deadline passes. The
// adapter resolves access and seeds snapshots on its own goroutines, so
// tests wait instead of sleeping fixed amounts.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// never verifies cond stays false for a little while.
func never(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		if cond() {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func accessFor(a *loopback.Access) midi.RequestAccessFunc {
	return func(midi.Options) (midi.Access, error) {
		return a, nil
	}
}

func stateOf(st *store.Store) *midi.State {
	return midi.StateFrom(st.GetState(), "")
}

// recorded collects every ReceiveMessage seen on the store.
type recorded struct {
	mutex sync.Mutex
	msgs  []midi.Message
}

func (r *recorded) middleware() store.Middleware {
	return func(api store.API) func(store.Dispatch) store.Dispatch {
		return func(next store.Dispatch) store.Dispatch {
			return func(action store.Action) store.Action {
				result := next(action)
				if m, ok := action.(midi.ReceiveMessage); ok {
					r.mutex.Lock()
					r.msgs = append(r.msgs, m.Message)
					r.mutex.Unlock()
				}
				return result
			}
		}
	}
}

func (r *recorded) messages() []midi.Message {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make([]midi.Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func TestDeviceDiscovery(t *testing.T) {
	access := loopback.New()
	access.AddInput(midi.Device{ID: "b-in", Name: "beta"})
	access.AddOutput(midi.Device{ID: "a-out", Name: "alpha"})

	st := midi.NewStore(midi.Config{RequestAccess: accessFor(access)})
	st.Dispatch(midi.SetListeningDevices{IDs: []string{}})

	eventually(t, func() bool {
		return len(stateOf(st).Devices) == 2
	}, "devices never appeared in state")

	devices := stateOf(st).Devices
	// sorted by id ascending
	if devices[0].ID != "a-out" || devices[1].ID != "b-in" {
		t.Errorf("devices not sorted by id: %+v", devices)
	}
}

func TestDeviceListFollowsChanges(t *testing.T) {
	access := loopback.New()
	st := midi.NewStore(midi.Config{RequestAccess: accessFor(access)})
	st.Dispatch(midi.SetListeningDevices{IDs: []string{}})

	access.AddInput(midi.Device{ID: "new-in"})
	eventually(t, func() bool {
		return len(stateOf(st).Devices) == 1
	}, "added device never appeared")

	access.Remove("new-in")
	eventually(t, func() bool {
		return len(stateOf(st).Devices) == 0
	}, "removed device never disappeared")
}

func TestListenAndUnlisten(t *testing.T) {
	access := loopback.New()
	input := access.AddInput(midi.Device{ID: "keys"})

	st := midi.NewStore(midi.Config{RequestAccess: accessFor(access)})
	st.Dispatch(midi.SetListeningDevices{IDs: []string{}})
	eventually(t, func() bool {
		return len(stateOf(st).Devices) == 1
	}, "device never appeared")

	st.Dispatch(midi.SetListeningDevices{IDs: []string{"keys"}})
	eventually(t, input.Subscribed, "input never subscribed")

	st.Dispatch(midi.SetListeningDevices{IDs: []string{}})
	eventually(t, func() bool {
		return !input.Subscribed()
	}, "input never unsubscribed")
}

func TestListenIdempotent(t *testing.T) {
	access := loopback.New()
	input := access.AddInput(midi.Device{ID: "keys"})

	st := midi.NewStore(midi.Config{RequestAccess: accessFor(access)})
	st.Dispatch(midi.SetListeningDevices{IDs: []string{}})
	eventually(t, func() bool {
		return len(stateOf(st).Devices) == 1
	}, "device never appeared")

	st.Dispatch(midi.SetListeningDevices{IDs: []string{"keys"}})
	eventually(t, input.Subscribed, "input never subscribed")
	count := input.SubscribeCount()

	// same ids again: no listen/unlisten side effects the second time
	st.Dispatch(midi.SetListeningDevices{IDs: []string{"keys"}})
	never(t, func() bool {
		return input.SubscribeCount() != count || !input.Subscribed()
	}, "re-dispatching the same listening set touched subscriptions")
}

func TestListeningUnknownDeviceIsInert(t *testing.T) {
	access := loopback.New()
	st := midi.NewStore(midi.Config{RequestAccess: accessFor(access)})

	// listening for a device that is not connected must do nothing
	st.Dispatch(midi.SetListeningDevices{IDs: []string{"ghost"}})

	input := access.AddInput(midi.Device{ID: "ghost"})
	// ... until it appears
	eventually(t, input.Subscribed, "input never subscribed after appearing")
}

func TestRelistenAfterReconnect(t *testing.T) {
	access := loopback.New()
	input := access.AddInput(midi.Device{ID: "keys"})

	st := midi.NewStore(midi.Config{RequestAccess: accessFor(access)})
	st.Dispatch(midi.SetListeningDevices{IDs: []string{"keys"}})
	eventually(t, input.Subscribed, "input never subscribed")

	access.Remove("keys")
	eventually(t, func() bool {
		return len(stateOf(st).Devices) == 0
	}, "removed device never disappeared")

	reconnected := access.AddInput(midi.Device{ID: "keys"})
	eventually(t, reconnected.Subscribed, "input never re-subscribed after reconnect")
}

func TestReceiveMessage(t *testing.T) {
	access := loopback.New()
	input := access.AddInput(midi.Device{ID: "keys"})

	rec := &recorded{}
	st := midi.NewStore(midi.Config{RequestAccess: accessFor(access)}, rec.middleware())
	st.Dispatch(midi.SetListeningDevices{IDs: []string{"keys"}})
	eventually(t, input.Subscribed, "input never subscribed")

	legacy := 42.0
	input.Emit(midi.Event{Data: []byte{0x90, 60, 127}, Timestamp: &legacy})

	eventually(t, func() bool {
		return len(rec.messages()) == 1
	}, "message never dispatched")

	msg := rec.messages()[0]
	if msg.Device != "keys" {
		t.Errorf("wrong device: %q", msg.Device)
	}
	if msg.Timestamp != 42 {
		t.Errorf("legacy timestamp not normalized: %v", msg.Timestamp)
	}
	if len(msg.Data) != 3 || msg.Data[0] != 0x90 {
		t.Errorf("wrong payload: %v", msg.Data)
	}
}

func TestOutputRouting(t *testing.T) {
	access := loopback.New()
	out1 := access.AddOutput(midi.Device{ID: "out1"})
	out2 := access.AddOutput(midi.Device{ID: "out2"})

	st := midi.NewStore(midi.Config{RequestAccess: accessFor(access)})
	st.Dispatch(midi.SendMessage{Message: midi.Message{
		Device:    "out1",
		Data:      []byte{0x90, 60, 127},
		Timestamp: 5,
	}})

	eventually(t, func() bool {
		return len(out1.Sent()) == 1
	}, "message never sent")

	sent := out1.Sent()[0]
	if sent.Timestamp != 5 || len(sent.Data) != 3 {
		t.Errorf("wrong send: %+v", sent)
	}
	if len(out2.Sent()) != 0 {
		t.Errorf("message leaked to another output: %+v", out2.Sent())
	}
}

func TestUnknownDeviceSendIsDropped(t *testing.T) {
	access := loopback.New()
	out := access.AddOutput(midi.Device{ID: "present"})

	st := midi.NewStore(midi.Config{RequestAccess: accessFor(access)})
	st.Dispatch(midi.SendMessage{Message: midi.Message{Device: "missing", Data: []byte{0x80}}})

	never(t, func() bool {
		return len(out.Sent()) != 0
	}, "send to unknown device reached a real output")
}

func TestSendDeferredUntilAccessResolves(t *testing.T) {
	access := loopback.New()
	out := access.AddOutput(midi.Device{ID: "late"})

	release := make(chan struct{})
	slow := func(midi.Options) (midi.Access, error) {
		<-release
		return access, nil
	}

	st := midi.NewStore(midi.Config{RequestAccess: slow})
	st.Dispatch(midi.SendMessage{Message: midi.Message{Device: "late", Data: []byte{0xF8}}})

	never(t, func() bool {
		return len(out.Sent()) != 0
	}, "send went through before access resolved")

	close(release)
	eventually(t, func() bool {
		return len(out.Sent()) == 1
	}, "deferred send never happened")
}

func TestRequestAccessOnce(t *testing.T) {
	access := loopback.New()

	var mutex sync.Mutex
	calls := 0
	release := make(chan struct{})
	counting := func(midi.Options) (midi.Access, error) {
		mutex.Lock()
		calls++
		mutex.Unlock()
		<-release
		return access, nil
	}

	st := midi.NewStore(midi.Config{RequestAccess: counting})

	// several triggers while the request is still in flight: the
	// bootstrap plus two deferred sends all share one attempt
	st.Dispatch(midi.SetListeningDevices{IDs: []string{}})
	st.Dispatch(midi.SendMessage{Message: midi.Message{Device: "x"}})
	st.Dispatch(midi.SendMessage{Message: midi.Message{Device: "y"}})

	never(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return calls > 1
	}, "underlying requestAccess issued more than once")
	close(release)
}

func TestFailedAccessIsMemoized(t *testing.T) {
	var mutex sync.Mutex
	calls := 0
	failing := func(midi.Options) (midi.Access, error) {
		mutex.Lock()
		calls++
		mutex.Unlock()
		return nil, errors.New("no midi for you")
	}

	st := midi.NewStore(midi.Config{RequestAccess: failing})
	st.Dispatch(midi.SetListeningDevices{IDs: []string{}})
	eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return calls == 1
	}, "access never requested")

	// later triggers observe the same failed attempt
	st.Dispatch(midi.SendMessage{Message: midi.Message{Device: "x"}})
	st.Dispatch(midi.SendMessage{Message: midi.Message{Device: "y"}})
	never(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return calls > 1
	}, "failed attempt was re-issued without RetryOnError")
}

func TestFailedAccessRetriedWhenConfigured(t *testing.T) {
	var mutex sync.Mutex
	calls := 0
	failing := func(midi.Options) (midi.Access, error) {
		mutex.Lock()
		calls++
		mutex.Unlock()
		return nil, errors.New("still no midi")
	}

	st := midi.NewStore(midi.Config{RequestAccess: failing, RetryOnError: true})
	st.Dispatch(midi.SetListeningDevices{IDs: []string{}})
	eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return calls >= 1
	}, "access never requested")

	before := func() int {
		mutex.Lock()
		defer mutex.Unlock()
		return calls
	}()

	// the failed attempt is forgotten asynchronously, so keep triggering
	deadline := time.Now().Add(2 * time.Second)
	for {
		st.Dispatch(midi.SendMessage{Message: midi.Message{Device: "x"}})
		mutex.Lock()
		retried := calls > before
		mutex.Unlock()
		if retried {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("failed attempt was not retried with RetryOnError")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDiscoveryRecoversAfterRetriedAccess(t *testing.T) {
	access := loopback.New()
	input := access.AddInput(midi.Device{ID: "keys"})

	var mutex sync.Mutex
	calls := 0
	flaky := func(midi.Options) (midi.Access, error) {
		mutex.Lock()
		defer mutex.Unlock()
		calls++
		if calls == 1 {
			return nil, errors.New("busy")
		}
		return access, nil
	}

	st := midi.NewStore(midi.Config{RequestAccess: flaky, RetryOnError: true})
	st.Dispatch(midi.SetListeningDevices{IDs: []string{"keys"}})

	// the first attempt fails; keep dispatching until the retried
	// request brings discovery up
	deadline := time.Now().Add(2 * time.Second)
	for len(stateOf(st).Devices) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("devices never appeared after a retried access request")
		}
		st.Dispatch(midi.SendMessage{Message: midi.Message{Device: "none"}})
		time.Sleep(5 * time.Millisecond)
	}

	eventually(t, input.Subscribed, "listening never attached after recovery")
}

func TestNoBackendIsSilent(t *testing.T) {
	st := midi.NewStore(midi.Config{})
	st.Dispatch(midi.SetListeningDevices{IDs: []string{"keys"}})
	st.Dispatch(midi.SendMessage{Message: midi.Message{Device: "keys"}})

	never(t, func() bool {
		return len(stateOf(st).Devices) != 0
	}, "devices appeared without a backend")
}

func TestOptionsArePassedThrough(t *testing.T) {
	got := make(chan midi.Options, 1)
	request := func(opts midi.Options) (midi.Access, error) {
		got <- opts
		return loopback.New(), nil
	}

	st := midi.NewStore(midi.Config{RequestAccess: request, Options: midi.Options{Sysex: true}})
	st.Dispatch(midi.SetListeningDevices{IDs: []string{}})

	select {
	case opts := <-got:
		if !opts.Sysex {
			t.Error("options not passed through to requestAccess")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("requestAccess never called")
	}
}

func TestActionsPassThroughUnmodified(t *testing.T) {
	st := midi.NewStore(midi.Config{RequestAccess: accessFor(loopback.New())})

	action := midi.SetListeningDevices{IDs: []string{"a"}}
	got := st.Dispatch(action)
	setAction, ok := got.(midi.SetListeningDevices)
	if !ok || len(setAction.IDs) != 1 || setAction.IDs[0] != "a" {
		t.Errorf("action came back modified: %v", got)
	}
}
