// Package queue serializes work per key while running different keys
// concurrently.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrEmptyLaneID is returned when Do is called with an empty lane ID.
var ErrEmptyLaneID = errors.New("queue: lane ID must not be empty")

type workItem struct {
	ctx  context.Context
	fn   func() error
	done chan error
}

// lane owns one worker goroutine. pending counts items submitted and not yet
// finished; it is guarded by LaneQueue.mu.
type lane struct {
	work    chan workItem
	pending int
}

// defaultLaneBufferSize is the capacity of each lane's work channel.
// Tests in this package may override it to exercise full-buffer paths.
var defaultLaneBufferSize = 64

// LaneQueue runs work in FIFO order per lane and lanes concurrently, with at
// most parallel functions executing at once. A lane's goroutine exits as soon
// as its last pending item finishes.
type LaneQueue struct {
	mu    sync.Mutex
	lanes map[string]*lane
	slots chan struct{}
}

// NewLaneQueue returns a queue. parallel <= 0 means no global limit.
func NewLaneQueue(parallel int) *LaneQueue {
	q := &LaneQueue{lanes: make(map[string]*lane)}
	if parallel > 0 {
		q.slots = make(chan struct{}, parallel)
	}
	return q
}

// Do executes fn serially within the given lane. It blocks until the work
// completes or ctx is cancelled. Work already handed to the lane still runs
// after a cancellation unless it has not started yet.
func (q *LaneQueue) Do(ctx context.Context, laneID string, fn func() error) error {
	if laneID == "" {
		return ErrEmptyLaneID
	}
	item := workItem{ctx: ctx, fn: fn, done: make(chan error, 1)}

	q.mu.Lock()
	l, ok := q.lanes[laneID]
	if !ok {
		l = &lane{work: make(chan workItem, defaultLaneBufferSize)}
		q.lanes[laneID] = l
		go q.run(laneID, l)
	}
	l.pending++
	q.mu.Unlock()

	select {
	case l.work <- item:
	case <-ctx.Done():
		q.finish(laneID, l)
		return ctx.Err()
	}

	select {
	case err := <-item.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *LaneQueue) run(laneID string, l *lane) {
	for item := range l.work {
		item.done <- q.exec(item)
		q.finish(laneID, l)
	}
}

// finish retires the lane once nothing is pending on it.
func (q *LaneQueue) finish(laneID string, l *lane) {
	q.mu.Lock()
	defer q.mu.Unlock()
	l.pending--
	if l.pending == 0 {
		delete(q.lanes, laneID)
		close(l.work)
	}
}

func (q *LaneQueue) exec(item workItem) error {
	if err := item.ctx.Err(); err != nil {
		return err
	}
	if q.slots != nil {
		select {
		case q.slots <- struct{}{}:
			defer func() { <-q.slots }()
		case <-item.ctx.Done():
			return item.ctx.Err()
		}
	}
	return safeExec(item.fn)
}

// safeExec runs fn and recovers from panics, converting them to errors.
func safeExec(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: panic: %v", r)
		}
	}()
	return fn()
}

// LaneCount returns the number of lanes with pending work.
func (q *LaneQueue) LaneCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}
