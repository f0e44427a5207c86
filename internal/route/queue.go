package route

import "sync/atomic"

// Queue is an immutable, ordered list of specs with a shared claim cursor.
// The cursor is the only mutable state shared between workers.
type Queue struct {
	specs  []Spec
	cursor atomic.Int64
}

// NewQueue builds a queue over specs. The slice is copied.
func NewQueue(specs []Spec) *Queue {
	return &Queue{specs: append([]Spec(nil), specs...)}
}

// Len returns the number of specs in the queue.
func (q *Queue) Len() int {
	return len(q.specs)
}

// Claim hands out the next unclaimed spec. Every index in [0, Len) is returned
// to exactly one caller; ok is false once the queue is exhausted.
func (q *Queue) Claim() (Spec, bool) {
	i := q.cursor.Add(1) - 1
	if i >= int64(len(q.specs)) {
		return Spec{}, false
	}
	return q.specs[i], true
}

// Claimed returns how many specs have been handed out.
func (q *Queue) Claimed() int {
	n := q.cursor.Load()
	if n > int64(len(q.specs)) {
		return len(q.specs)
	}
	return int(n)
}
