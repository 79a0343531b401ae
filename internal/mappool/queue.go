package mappool

import (
	"errors"
	"time"
)

var (
	ErrQueueFull        = errors.New("map queue is full")
	ErrAlreadyQueued    = errors.New("map is already queued")
	ErrAlreadyRequested = errors.New("player already has a map queued")
)

// Request is a player's MyMap pick.
type Request struct {
	Map      string
	Slot     int
	SocialID string
	Name     string
	At       time.Duration
}

// Queue is the MyMap play queue. The pool owns it and prunes it on reload.
type Queue struct {
	items []Request
	limit int
}

// NewQueue returns a queue holding at most limit requests; zero is unbounded.
func NewQueue(limit int) *Queue {
	return &Queue{limit: limit}
}

func (q *Queue) SetLimit(limit int) {
	q.limit = limit
}

func (q *Queue) Push(r Request) error {
	if q.limit > 0 && len(q.items) >= q.limit {
		return ErrQueueFull
	}
	for _, it := range q.items {
		if key(it.Map) == key(r.Map) {
			return ErrAlreadyQueued
		}
		if r.SocialID != "" && it.SocialID == r.SocialID {
			return ErrAlreadyRequested
		}
	}
	q.items = append(q.items, r)
	return nil
}

func (q *Queue) Pop() (Request, bool) {
	if len(q.items) == 0 {
		return Request{}, false
	}
	r := q.items[0]
	q.items = q.items[1:]
	return r, true
}

func (q *Queue) Peek() (Request, bool) {
	if len(q.items) == 0 {
		return Request{}, false
	}
	return q.items[0], true
}

func (q *Queue) Len() int {
	return len(q.items)
}

func (q *Queue) Items() []Request {
	out := make([]Request, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue) Contains(name string) bool {
	for _, it := range q.items {
		if key(it.Map) == key(name) {
			return true
		}
	}
	return false
}

func (q *Queue) prune(exists func(string) bool) []Request {
	var pruned []Request
	kept := q.items[:0]
	for _, it := range q.items {
		if exists(it.Map) {
			kept = append(kept, it)
		} else {
			pruned = append(pruned, it)
		}
	}
	clear(q.items[len(kept):])
	q.items = kept
	return pruned
}
