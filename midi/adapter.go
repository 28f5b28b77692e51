package midi

import (
	"sort"
	"sync"

	"github.com/midibridge/midid-go/memorywriter"
	"github.com/midibridge/midid-go/store"
)

// Config configures Setup.
type Config struct {
	// Options are passed through to RequestAccess unmodified.
	Options Options

	// StateKey is where the reducer is mounted; DefaultStateKey when
	// empty.
	StateKey string

	// RequestAccess is the platform entry point. When nil, every
	// request fails with ErrAccessUnavailable.
	RequestAccess RequestAccessFunc

	// RetryOnError forgets a failed access request so that the next
	// dispatched action issues a fresh one. When false a failed attempt
	// is memoized and every later caller observes the same error.
	RetryOnError bool

	// Log takes detailed breadcrumbs; may be nil.
	Log *memorywriter.MemoryWriter
}

// Adapter owns the lazy connection to the access handle and bridges it
// into a store. One Adapter instance backs both middleware; nothing here
// is process-global.
type Adapter struct {
	options  Options
	stateKey string
	request  RequestAccessFunc
	retry    bool
	log      *memorywriter.MemoryWriter

	accessMutex sync.Mutex // guards attempt
	attempt     *accessFuture

	bootstrapMutex sync.Mutex
	bootstrapState int

	// active message subscriptions, device id -> detach.
	// Touched only on the dispatch path, which the store serializes.
	subscriptions map[string]func()
}

// accessFuture is one in-flight or finished access request. The fields
// are written once, before done is closed.
type accessFuture struct {
	done   chan struct{}
	access Access
	err    error
}

// bootstrap states
const (
	bootstrapIdle = iota
	bootstrapRunning
	bootstrapDone
)

// Setup creates the adapter shared by InputMiddleware and
// OutputMiddleware.
func Setup(cfg Config) *Adapter {
	request := cfg.RequestAccess
	if request == nil {
		request = func(Options) (Access, error) {
			return nil, ErrAccessUnavailable
		}
	}
	stateKey := cfg.StateKey
	if stateKey == "" {
		stateKey = DefaultStateKey
	}
	return &Adapter{
		options:       cfg.Options,
		stateKey:      stateKey,
		request:       request,
		retry:         cfg.RetryOnError,
		log:           cfg.Log,
		subscriptions: make(map[string]func()),
	}
}

// StateKey returns the mount key of the reducer.
func (a *Adapter) StateKey() string {
	return a.stateKey
}

func (a *Adapter) Log(s string) {
	if a.log != nil {
		a.log.Log("midi - " + s)
	}
}

// requestAccessOnce is the idempotent accessor of the memoized handle:
// the first caller issues the request, concurrent callers before
// resolution share the same in-flight attempt, later callers get the
// finished one. With RetryOnError a failed attempt is forgotten instead.
func (a *Adapter) requestAccessOnce() *accessFuture {
	a.accessMutex.Lock()
	if a.attempt != nil {
		fut := a.attempt
		a.accessMutex.Unlock()
		return fut
	}
	fut := &accessFuture{done: make(chan struct{})}
	a.attempt = fut
	a.accessMutex.Unlock()

	go func() {
		fut.access, fut.err = a.request(a.options)
		if fut.err != nil && a.retry {
			a.accessMutex.Lock()
			if a.attempt == fut {
				a.attempt = nil
			}
			a.accessMutex.Unlock()
		}
		close(fut.done)
	}()
	return fut
}

// resolved returns the access handle only when a request already
// finished successfully; it never blocks.
func (a *Adapter) resolved() Access {
	a.accessMutex.Lock()
	fut := a.attempt
	a.accessMutex.Unlock()
	if fut == nil {
		return nil
	}
	select {
	case <-fut.done:
		if fut.err != nil {
			return nil
		}
		return fut.access
	default:
		return nil
	}
}

// InputMiddleware mirrors the device list into state and manages the
// per-device message subscriptions. Actions always pass through
// unmodified; this middleware never short-circuits.
func (a *Adapter) InputMiddleware() store.Middleware {
	return func(api store.API) func(store.Dispatch) store.Dispatch {
		return func(next store.Dispatch) store.Dispatch {
			return func(action store.Action) store.Action {
				a.maybeBootstrap(api)
				prev := a.stateOf(api.GetState())
				result := next(action)
				a.reconcile(prev, a.stateOf(api.GetState()), api)
				return result
			}
		}
	}
}

// maybeBootstrap starts the discovery hookup unless one is running or
// already finished.
func (a *Adapter) maybeBootstrap(api store.API) {
	a.bootstrapMutex.Lock()
	start := a.bootstrapState == bootstrapIdle
	if start {
		a.bootstrapState = bootstrapRunning
	}
	a.bootstrapMutex.Unlock()
	if start {
		go a.bootstrap(api)
	}
}

// bootstrap runs off the dispatch path: await the handle, hook the
// device change callback, seed the first snapshot. An access failure is
// swallowed here; without RetryOnError discovery simply never starts,
// with it the bootstrap re-arms so the next action tries again.
func (a *Adapter) bootstrap(api store.API) {
	fut := a.requestAccessOnce()
	<-fut.done
	if fut.err != nil {
		a.Log("bootstrap - access request failed: " + fut.err.Error())
		a.bootstrapMutex.Lock()
		if a.retry {
			a.bootstrapState = bootstrapIdle
		} else {
			a.bootstrapState = bootstrapDone
		}
		a.bootstrapMutex.Unlock()
		return
	}
	a.bootstrapMutex.Lock()
	a.bootstrapState = bootstrapDone
	a.bootstrapMutex.Unlock()
	access := fut.access
	access.SetStateChangeHandler(func() {
		a.syncDevices(access, api)
	})
	a.Log("bootstrap - initial device snapshot")
	a.syncDevices(access, api)
}

// syncDevices snapshots the current device list and dispatches an update
// when it differs from state.
func (a *Adapter) syncDevices(access Access, api store.API) {
	devices := snapshotDevices(access)
	if devicesEqual(a.stateOf(api.GetState()).Devices, devices) {
		return
	}
	api.Dispatch(ReceiveDeviceList{Devices: devices})
}

func snapshotDevices(access Access) []Device {
	devices := []Device{}
	for _, in := range access.Inputs() {
		devices = append(devices, in.Descriptor())
	}
	for _, out := range access.Outputs() {
		devices = append(devices, out.Descriptor())
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID < devices[j].ID
	})
	return devices
}

// reconcile diffs the state before and after one action and
// subscribes/unsubscribes message callbacks accordingly.
func (a *Adapter) reconcile(prev, next *State, api store.API) {
	if prev == next {
		return
	}

	var toListen, toUnlisten []string
	if !stringsEqual(prev.ListeningDevices, next.ListeningDevices) {
		toUnlisten = diffStrings(prev.ListeningDevices, next.ListeningDevices)
		toListen = diffStrings(next.ListeningDevices, prev.ListeningDevices)
	}

	if !devicesEqual(prev.Devices, next.Devices) {
		// re-listen devices that reappeared while still in the
		// listening set (reconnection)
		for _, id := range next.ListeningDevices {
			if containsString(toListen, id) {
				continue
			}
			if hasInput(next.Devices, id) && !hasDevice(prev.Devices, id) {
				toListen = append(toListen, id)
			}
		}
	}

	if len(toListen) == 0 && len(toUnlisten) == 0 {
		return
	}

	access := a.resolved()
	for _, id := range toUnlisten {
		a.unlisten(id)
	}
	for _, id := range toListen {
		a.listen(access, id, api)
	}
}

// listen attaches the message callback of one input device. Unknown IDs
// and an unresolved handle are inert; the next device list change tries
// again.
func (a *Adapter) listen(access Access, id string, api store.API) {
	if access == nil {
		return
	}
	// drop a stale subscription from before a reconnect
	a.unlisten(id)

	input := findInput(access, id)
	if input == nil {
		return
	}
	deviceID := id
	stop, err := input.Subscribe(func(ev Event) {
		api.Dispatch(ReceiveMessage{Message: Message{
			Data:      ev.Data,
			Timestamp: NormalizeTimestamp(ev),
			Device:    deviceID,
		}})
	})
	if err != nil {
		a.Log("listen - subscribe failed on " + id + ": " + err.Error())
		return
	}
	a.Log("listen - subscribed " + id)
	a.subscriptions[id] = stop
}

func (a *Adapter) unlisten(id string) {
	stop, ok := a.subscriptions[id]
	if !ok {
		return
	}
	a.Log("listen - unsubscribed " + id)
	stop()
	delete(a.subscriptions, id)
}

// OutputMiddleware forwards every action first and then routes
// SendMessage actions to the matching output device. Unknown devices and
// send failures are silent drops; MIDI I/O is best-effort.
func (a *Adapter) OutputMiddleware() store.Middleware {
	return func(api store.API) func(store.Dispatch) store.Dispatch {
		return func(next store.Dispatch) store.Dispatch {
			return func(action store.Action) store.Action {
				result := next(action)
				if send, ok := action.(SendMessage); ok {
					a.deliver(send.Message)
				}
				return result
			}
		}
	}
}

// deliver sends immediately when the handle is resolved, otherwise once
// the in-flight request finishes.
func (a *Adapter) deliver(msg Message) {
	if access := a.resolved(); access != nil {
		a.send(access, msg)
		return
	}
	fut := a.requestAccessOnce()
	go func() {
		<-fut.done
		if fut.err != nil {
			a.Log("send - access request failed: " + fut.err.Error())
			return
		}
		a.send(fut.access, msg)
	}()
}

func (a *Adapter) send(access Access, msg Message) {
	output := findOutput(access, msg.Device)
	if output == nil {
		a.Log("send - unknown output " + msg.Device)
		return
	}
	if err := output.Send(msg.Data, msg.Timestamp); err != nil {
		a.Log("send - " + msg.Device + ": " + err.Error())
	}
}

func (a *Adapter) stateOf(root store.State) *State {
	if st, ok := root[a.stateKey].(*State); ok {
		return st
	}
	return &State{}
}

func findInput(access Access, id string) Input {
	for _, in := range access.Inputs() {
		if in.Descriptor().ID == id {
			return in
		}
	}
	return nil
}

func findOutput(access Access, id string) Output {
	for _, out := range access.Outputs() {
		if out.Descriptor().ID == id {
			return out
		}
	}
	return nil
}

func devicesEqual(a, b []Device) bool {
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

// diffStrings returns the elements of a missing from b.
func diffStrings(a, b []string) []string {
	var diff []string
	for _, s := range a {
		if !containsString(b, s) {
			diff = append(diff, s)
		}
	}
	return diff
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func hasDevice(devices []Device, id string) bool {
	for _, d := range devices {
		if d.ID == id {
			return true
		}
	}
	return false
}

func hasInput(devices []Device, id string) bool {
	for _, d := range devices {
		if d.ID == id && d.Type == TypeInput {
			return true
		}
	}
	return false
}
