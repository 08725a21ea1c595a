package dialogue

import "github.com/OsoPanda1/isabella/pkg/model"

// transcript is a fixed capacity ring of turns. When full, appending drops
// the oldest turn. It is not safe for concurrent use.
type transcript struct {
	turns []model.ConversationTurn
	start int
	size  int
}

func newTranscript(capacity int) *transcript {
	return &transcript{turns: make([]model.ConversationTurn, capacity)}
}

func (t *transcript) append(turns ...model.ConversationTurn) {
	for _, turn := range turns {
		end := (t.start + t.size) % len(t.turns)
		t.turns[end] = turn
		if t.size < len(t.turns) {
			t.size++
		} else {
			t.start = (t.start + 1) % len(t.turns)
		}
	}
}

// last returns a copy of the n most recent turns, oldest first
func (t *transcript) last(n int) []model.ConversationTurn {
	if n > t.size {
		n = t.size
	}
	out := make([]model.ConversationTurn, n)
	offset := t.size - n
	for i := 0; i < n; i++ {
		out[i] = t.turns[(t.start+offset+i)%len(t.turns)]
	}
	return out
}

func (t *transcript) all() []model.ConversationTurn {
	return t.last(t.size)
}

func (t *transcript) len() int {
	return t.size
}

func (t *transcript) clear() {
	clear(t.turns)
	t.start = 0
	t.size = 0
}
