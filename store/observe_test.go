package store

import (
	"testing"
)

type set struct {
	value string
}

func valueReducer(slice interface{}, action Action) interface{} {
	current, _ := slice.(string)
	if s, ok := action.(set); ok {
		return s.value
	}
	return current
}

func TestObserveFiresAtCallTime(t *testing.T) {
	s := New(map[string]Reducer{"v": valueReducer})
	s.Dispatch(set{"hello"})

	var gotNext, gotPrev interface{}
	calls := 0
	Observe(s, func(st State) interface{} { return st["v"] }, func(next, prev interface{}) {
		calls++
		gotNext, gotPrev = next, prev
	})

	if calls != 1 {
		t.Fatalf("expected 1 initial call, got %d", calls)
	}
	if gotNext != "hello" || gotPrev != nil {
		t.Errorf("initial call got next=%v prev=%v", gotNext, gotPrev)
	}
}

func TestObserveOnlyOnChange(t *testing.T) {
	s := New(map[string]Reducer{"v": valueReducer})

	calls := 0
	Observe(s, func(st State) interface{} { return st["v"] }, func(next, prev interface{}) {
		calls++
	})
	initial := calls

	s.Dispatch(set{"a"})
	s.Dispatch(set{"a"}) // same value, no notification
	s.Dispatch("unrelated")
	s.Dispatch(set{"b"})

	if calls-initial != 2 {
		t.Errorf("expected 2 change calls, got %d", calls-initial)
	}
}

func TestObserveUnsubscribe(t *testing.T) {
	s := New(map[string]Reducer{"v": valueReducer})

	calls := 0
	unsubscribe := Observe(s, func(st State) interface{} { return st["v"] }, func(next, prev interface{}) {
		calls++
	})
	unsubscribe()
	s.Dispatch(set{"a"})

	if calls != 1 { // only the call-time invocation
		t.Errorf("observer ran after unsubscribe, calls=%d", calls)
	}
}

func TestObserveDeepComparesSlices(t *testing.T) {
	s := New(map[string]Reducer{"list": appendReducer})

	calls := 0
	Observe(s, func(st State) interface{} { return st["list"] }, func(next, prev interface{}) {
		calls++
	})
	initial := calls

	s.Dispatch(push{"a"})
	s.Dispatch("unrelated") // reducer keeps the same slice
	if calls-initial != 1 {
		t.Errorf("expected 1 change call, got %d", calls-initial)
	}
}

func TestSameValue(t *testing.T) {
	testcases := []struct {
		name string
		a, b interface{}
		same bool
	}{
		{"nils", nil, nil, true},
		{"nil vs value", nil, 1, false},
		{"equal ints", 3, 3, true},
		{"different ints", 3, 4, false},
		{"different types", 3, "3", false},
		{"equal slices", []string{"x"}, []string{"x"}, true},
		{"different slices", []string{"x"}, []string{"y"}, false},
	}
	for _, tc := range testcases {
		if got := sameValue(tc.a, tc.b); got != tc.same {
			t.Errorf("%s: sameValue(%v, %v) = %v, want %v", tc.name, tc.a, tc.b, got, tc.same)
		}
	}
}
