package scheduler

import (
	"container/heap"
	"sync"

	"github.com/vnykmshr/taskprocessor/pkg/task"
)

// ring is a fixed-capacity FIFO guarded by its own mutex.
type ring struct {
	mu   sync.Mutex
	buf  []*task.Task
	head int
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]*task.Task, capacity)}
}

// tryPush appends t unless the ring is full. It never blocks on capacity.
func (r *ring) tryPush(t *task.Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size == len(r.buf) {
		return false
	}
	r.buf[(r.head+r.size)%len(r.buf)] = t
	r.size++
	return true
}

func (r *ring) pop() (*task.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size == 0 {
		return nil, false
	}
	t := r.buf[r.head]
	r.buf[r.head] = nil
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return t, true
}

func (r *ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *ring) Cap() int {
	return len(r.buf)
}

type backlogItem struct {
	task *task.Task
	seq  uint64
}

// backlogHeap orders by priority, highest first, then by arrival.
type backlogHeap []backlogItem

func (h backlogHeap) Len() int { return len(h) }
func (h backlogHeap) Less(i, j int) bool {
	if c := task.Compare(h[i].task, h[j].task); c != 0 {
		return c > 0
	}
	return h[i].seq < h[j].seq
}
func (h backlogHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *backlogHeap) Push(x any)   { *h = append(*h, x.(backlogItem)) }
func (h *backlogHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = backlogItem{}
	*h = old[:n-1]
	return item
}

// backlog is the unbounded overflow tier.
type backlog struct {
	mu    sync.Mutex
	items backlogHeap
	seq   uint64
}

func (b *backlog) push(t *task.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	heap.Push(&b.items, backlogItem{task: t, seq: b.seq})
}

func (b *backlog) pop() (*task.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil, false
	}
	return heap.Pop(&b.items).(backlogItem).task, true
}

func (b *backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
