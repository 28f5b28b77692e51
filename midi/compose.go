package midi

import (
	"github.com/midibridge/midid-go/store"
)

// NewStore wires a ready-to-use store: the reducer mounted at
// cfg.StateKey, input middleware before output middleware (order
// matters: the device bootstrap must run before sends are attempted),
// options passed through untouched. Extra middleware ends up innermost,
// after both of ours.
func NewStore(cfg Config, extra ...store.Middleware) *store.Store {
	adapter := Setup(cfg)
	middleware := append(
		[]store.Middleware{adapter.InputMiddleware(), adapter.OutputMiddleware()},
		extra...,
	)
	return store.New(map[string]store.Reducer{
		adapter.StateKey(): Reducer,
	}, middleware...)
}

// StateFrom extracts this package's slice from root state, mounted at
// key (DefaultStateKey when empty). Missing or foreign slices come back
// as the empty state.
func StateFrom(root store.State, key string) *State {
	if key == "" {
		key = DefaultStateKey
	}
	if st, ok := root[key].(*State); ok {
		return st
	}
	return &State{}
}
