package game

import (
	"sync"

	"github.com/MrWong99/radiomirchi/pkg/mission"
)

// DialogueQueue is the FIFO of generated lines waiting to be spoken.
// Insertion order is speaking order; a refill only appends.
//
// The queue is safe for concurrent use so observers may read its length, but
// a session's control loop is its only writer.
type DialogueQueue struct {
	mu    sync.Mutex
	lines []mission.DialogueLine
}

// NewDialogueQueue returns an empty queue.
func NewDialogueQueue() *DialogueQueue {
	return &DialogueQueue{}
}

// Enqueue appends lines in order.
func (q *DialogueQueue) Enqueue(lines ...mission.DialogueLine) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lines = append(q.lines, lines...)
}

// DequeueNext removes and returns the oldest line, or [ErrQueueEmpty].
func (q *DialogueQueue) DequeueNext() (mission.DialogueLine, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.lines) == 0 {
		return mission.DialogueLine{}, ErrQueueEmpty
	}
	line := q.lines[0]
	q.lines[0] = mission.DialogueLine{}
	q.lines = q.lines[1:]
	return line, nil
}

// Len returns the number of queued lines.
func (q *DialogueQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lines)
}

// Snapshot returns a copy of the queued lines in speaking order.
func (q *DialogueQueue) Snapshot() []mission.DialogueLine {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]mission.DialogueLine, len(q.lines))
	copy(out, q.lines)
	return out
}

// Release drops every queued line. It is called once at session teardown.
func (q *DialogueQueue) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lines = nil
}
