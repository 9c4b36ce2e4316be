package chat

import (
	"time"

	"github.com/google/uuid"
)

// Speaker identifies who produced a Turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// State is the lifecycle position of a Turn:
//
//	pending → in_progress → finalized
//	pending → failed
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateFinalized  State = "finalized"
	StateFailed     State = "failed"
)

// Terminal reports whether no further change to the Turn is possible.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateFailed
}

// Turn is one message in a transcript. Turns handed out by a Session are
// copies; mutating them has no effect on the session.
type Turn struct {
	ID        uuid.UUID `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Update is one observation of the transcript while a reply streams in.
//
// Transcript is an immutable snapshot taken right after Fragment was applied.
// Exactly one Update per fragment is emitted, followed by a single Update
// with Final set once the assistant Turn has settled.
type Update struct {
	Transcript []Turn `json:"transcript"`
	Index      int    `json:"index"`
	Fragment   string `json:"fragment,omitempty"`
	Final      bool   `json:"final"`
}

// Turn returns the assistant Turn this update concerns.
func (u Update) Turn() Turn {
	if u.Index < 0 || u.Index >= len(u.Transcript) {
		return Turn{}
	}
	return u.Transcript[u.Index]
}

func newTurn(speaker Speaker, text string, state State) Turn {
	return Turn{
		ID:        uuid.New(),
		Speaker:   speaker,
		Text:      text,
		State:     state,
		CreatedAt: time.Now().UTC(),
	}
}
