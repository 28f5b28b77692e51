// Package store is a small unidirectional state container: actions are
// dispatched through a middleware chain into pure reducers, and listeners
// are notified after every dispatch. It carries no MIDI knowledge; the
// midi package mounts its reducer here.
package store

import "sync"

// Action is any plain value understood by reducers and middleware.
type Action interface{}

// State is the root state: one slice of state per mount key.
type State map[string]interface{}

// Reducer computes the next slice of state from the previous one and an
// action. The previous slice is nil on the very first reduction; reducers
// supply their initial state then. A reducer that changes nothing must
// return the previous slice unchanged.
type Reducer func(slice interface{}, action Action) interface{}

// Dispatch forwards an action through the rest of the middleware chain
// and eventually into the reducers. The action is returned back to the
// caller unmodified.
type Dispatch func(action Action) Action

// API is handed to middleware. API.Dispatch enters the whole chain from
// the top; it must not be called synchronously from inside a middleware's
// action path (callbacks dispatch from their own goroutines instead).
type API struct {
	Dispatch Dispatch
	GetState func() State
}

// Middleware wraps the dispatch pipeline.
type Middleware func(api API) func(next Dispatch) Dispatch

type listener struct {
	id int
	fn func()
}

type Store struct {
	dispatchMutex sync.Mutex // serializes whole dispatch cycles
	stateMutex    sync.RWMutex

	reducers map[string]Reducer
	state    State

	listeners  []listener
	listenerID int

	dispatch Dispatch
}

// action used once to seed initial state; never seen by applications
type initAction struct{}

// New creates a store with the given reducers mounted at their keys and
// the middleware applied so that the first one is outermost.
func New(reducers map[string]Reducer, middleware ...Middleware) *Store {
	s := &Store{
		reducers: make(map[string]Reducer, len(reducers)),
		state:    make(State, len(reducers)),
	}
	for key, r := range reducers {
		s.reducers[key] = r
		s.state[key] = r(nil, initAction{})
	}

	s.dispatch = s.reduce
	api := API{
		Dispatch: func(a Action) Action { return s.Dispatch(a) },
		GetState: s.GetState,
	}
	for i := len(middleware) - 1; i >= 0; i-- {
		s.dispatch = middleware[i](api)(s.dispatch)
	}
	return s
}

// Dispatch runs one action through the middleware chain and the reducers.
// Cycles are serialized; hardware callbacks may dispatch from any
// goroutine.
func (s *Store) Dispatch(action Action) Action {
	s.dispatchMutex.Lock()
	defer s.dispatchMutex.Unlock()
	return s.dispatch(action)
}

// GetState returns the current root state. The map must be treated as
// immutable.
func (s *Store) GetState() State {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.state
}

// Subscribe registers a listener called synchronously after every
// dispatch, in subscription order. The returned function unsubscribes.
func (s *Store) Subscribe(fn func()) func() {
	s.stateMutex.Lock()
	s.listenerID++
	id := s.listenerID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.stateMutex.Unlock()

	return func() {
		s.stateMutex.Lock()
		defer s.stateMutex.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// reduce is the innermost dispatch: apply every reducer, swap in the new
// root state, notify listeners.
func (s *Store) reduce(action Action) Action {
	s.stateMutex.RLock()
	prev := s.state
	s.stateMutex.RUnlock()

	next := make(State, len(s.reducers))
	for key, r := range s.reducers {
		next[key] = r(prev[key], action)
	}

	s.stateMutex.Lock()
	s.state = next
	notify := make([]func(), len(s.listeners))
	for i, l := range s.listeners {
		notify[i] = l.fn
	}
	s.stateMutex.Unlock()

	for _, fn := range notify {
		fn()
	}
	return action
}
