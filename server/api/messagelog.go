package api

import (
	"context"
	"sync"

	"github.com/midibridge/midid-go/midi"
	"github.com/midibridge/midid-go/store"
)

// MessageLog keeps the most recent inbound messages in a bounded ring so
// HTTP clients can long-poll them. It is filled by its Middleware, which
// the daemon appends after the adapter's own middleware.

type LoggedMessage struct {
	Seq     uint64       `json:"seq"`
	Message midi.Message `json:"message"`
}

type MessageLog struct {
	mutex   sync.Mutex
	limit   int
	msgs    []LoggedMessage
	nextSeq uint64
	changed chan struct{}
}

func NewMessageLog(limit int) *MessageLog {
	return &MessageLog{
		limit:   limit,
		nextSeq: 1,
		changed: make(chan struct{}),
	}
}

// Middleware records every ReceiveMessage action passing through the
// store. Actions are forwarded unmodified.
func (l *MessageLog) Middleware() store.Middleware {
	return func(api store.API) func(store.Dispatch) store.Dispatch {
		return func(next store.Dispatch) store.Dispatch {
			return func(action store.Action) store.Action {
				result := next(action)
				if received, ok := action.(midi.ReceiveMessage); ok {
					l.append(received.Message)
				}
				return result
			}
		}
	}
}

func (l *MessageLog) append(msg midi.Message) {
	l.mutex.Lock()
	if len(l.msgs) >= l.limit {
		l.msgs = l.msgs[1:]
	}
	l.msgs = append(l.msgs, LoggedMessage{Seq: l.nextSeq, Message: msg})
	l.nextSeq++
	close(l.changed)
	l.changed = make(chan struct{})
	l.mutex.Unlock()
}

// Since returns every remembered message with a sequence number greater
// than after.
func (l *MessageLog) Since(after uint64) []LoggedMessage {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	out := []LoggedMessage{}
	for _, m := range l.msgs {
		if m.Seq > after {
			out = append(out, m)
		}
	}
	return out
}

// Wait blocks until a message newer than after exists or the context is
// done, then returns whatever is there (possibly nothing).
func (l *MessageLog) Wait(ctx context.Context, after uint64) []LoggedMessage {
	for {
		l.mutex.Lock()
		changed := l.changed
		l.mutex.Unlock()

		msgs := l.Since(after)
		if len(msgs) > 0 {
			return msgs
		}
		select {
		case <-ctx.Done():
			return msgs
		case <-changed:
		}
	}
}
