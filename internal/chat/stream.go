package chat

import (
	"context"
	"sync"
)

// Stream delivers the transcript updates of one Send.
type Stream struct {
	index   int
	updates chan Update
	done    chan struct{}
	cancel  context.CancelFunc

	mu  sync.Mutex
	err error
}

func newStream(index int, cancel context.CancelFunc) *Stream {
	return &Stream{
		index: index,
		// Unbuffered: the next fragment is not read from the remote side
		// until the previous update has been taken.
		updates: make(chan Update),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
}

// settledStream is a stream whose reply settled without any fragment; it
// carries only the Final update.
func settledStream(snap []Turn, index int, err error) *Stream {
	st := &Stream{
		index:   index,
		updates: make(chan Update, 1),
		done:    make(chan struct{}),
		cancel:  func() {},
		err:     err,
	}
	st.updates <- Update{Transcript: snap, Index: index, Final: true}
	close(st.updates)
	close(st.done)
	return st
}

// Updates yields one Update per fragment and then the Final update. The
// channel is closed once the reply has settled.
func (st *Stream) Updates() <-chan Update { return st.updates }

// Index is the transcript position of the assistant turn.
func (st *Stream) Index() int { return st.index }

// Done is closed once the assistant turn has reached a terminal state.
func (st *Stream) Done() <-chan struct{} { return st.done }

// Close abandons the stream. Fragments that have not been applied yet are
// dropped, the assistant turn settles with whatever text had arrived, and
// Close returns after that has happened. Safe to call more than once.
func (st *Stream) Close() {
	st.cancel()
	<-st.done
}

// Err reports how the reply ended: nil on completion, an error wrapping
// ai.ErrTransport, ErrCredentialMissing, or the context error after
// cancellation. It returns nil until Done is closed.
func (st *Stream) Err() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.err
}

func (st *Stream) setErr(err error) {
	st.mu.Lock()
	st.err = err
	st.mu.Unlock()
}
