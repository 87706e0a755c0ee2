// Package queue holds the Serial Processor's pending-message FIFO (spec
// §4.4-§4.7). Most of the time it is a plain append/pop deque, but the
// Pause/Resume Controller needs to unshift a whole back-filled window onto
// the front and re-sort the merged result on resume (spec §4.7) — something
// a lock-free ring buffer (internal/ringbuf) cannot do, since it only
// supports single-producer append and single-consumer pop. So this is a
// fresh slice-backed deque guarded by a mutex, sorted with the same
// hand-rolled insertion sort the teacher's replay.go uses for its
// already-mostly-sorted candle merges, instead of reaching for
// sort.SliceStable.
package queue

import "livestratexec/internal/model"

// Queue is a FIFO of engine messages. All methods are safe for concurrent
// use by one producer (Event Intake) and one consumer (Serial Processor).
type Queue struct {
	mu    chan struct{} // binary semaphore; see lock/unlock below
	items []model.Message
}

func New() *Queue {
	q := &Queue{mu: make(chan struct{}, 1)}
	q.mu <- struct{}{}
	return q
}

func (q *Queue) lock()   { <-q.mu }
func (q *Queue) unlock() { q.mu <- struct{}{} }

// PushBack appends a message to the tail, the normal live-processing path.
func (q *Queue) PushBack(msg model.Message) {
	q.lock()
	q.items = append(q.items, msg)
	q.unlock()
}

// PopFront removes and returns the head message. ok is false on an empty
// queue.
func (q *Queue) PopFront() (model.Message, bool) {
	q.lock()
	defer q.unlock()
	if len(q.items) == 0 {
		return model.Message{}, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// Len reports the number of pending messages.
func (q *Queue) Len() int {
	q.lock()
	defer q.unlock()
	return len(q.items)
}

// UnshiftAndSort prepends backfilled messages to whatever is already
// pending and stable-sorts the merged slice by MTS (spec §4.7: "unshift the
// back-filled candles, then stable-sort the whole pending queue"). Messages
// with equal MTS keep their relative order — a backfilled candle and a
// freshly-arrived live duplicate for the same bucket must not swap.
func (q *Queue) UnshiftAndSort(backfilled []model.Message) {
	q.lock()
	defer q.unlock()
	merged := make([]model.Message, 0, len(backfilled)+len(q.items))
	merged = append(merged, backfilled...)
	merged = append(merged, q.items...)
	insertionSortByMTS(merged)
	q.items = merged
}

// insertionSortByMTS stable-sorts by Message.MTS(). Insertion sort, not
// sort.SliceStable: the merged slice is two already-sorted runs, so this is
// close to linear and keeps equal keys in their original relative order
// without the indirection of a less-func based stable sort.
func insertionSortByMTS(msgs []model.Message) {
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && msgs[j].MTS() < msgs[j-1].MTS(); j-- {
			msgs[j], msgs[j-1] = msgs[j-1], msgs[j]
		}
	}
}
