package store

import (
	"reflect"
	"sync"
)

// Observe watches one selection of the state: it recomputes
// sel(GetState()) on every store notification, and once synchronously at
// call time, and calls onChange(next, prev) whenever the selection
// differs from the last seen one. prev is nil on the first call.
//
// Go has no reference identity on slices, so "differs" is a shallow value
// comparison: == for comparable values, reflect.DeepEqual otherwise.
// Selections should therefore be cheap derived values, not large trees.
//
// The returned function unsubscribes.
func Observe(s *Store, sel func(State) interface{}, onChange func(next, prev interface{})) func() {
	var mutex sync.Mutex
	var last interface{}
	handle := func() {
		mutex.Lock()
		defer mutex.Unlock()
		next := sel(s.GetState())
		if sameValue(next, last) {
			return
		}
		prev := last
		last = next
		onChange(next, prev)
	}
	unsubscribe := s.Subscribe(handle)
	handle()
	return unsubscribe
}

func sameValue(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	av := reflect.ValueOf(a)
	bv := reflect.ValueOf(b)
	if av.Type() != bv.Type() {
		return false
	}
	if av.Type().Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
