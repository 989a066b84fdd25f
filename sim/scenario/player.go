package scenario

import (
	"container/heap"
	"context"
	"time"
)

type item struct {
	ev    Event
	due   int64
	index int
}

type eventHeap []*item

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return h[i].due < h[j].due }
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

func (h eventHeap) Top() *item {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// Run fires events in due order until the script and its duration are
// exhausted. apply is called on the player goroutine, so slow handlers
// delay later events.
func (s *Scenario) Run(ctx context.Context, apply func(Event)) error {
	start := time.Now()
	var end time.Time
	if s.Duration > 0 {
		end = start.Add(s.Duration.D())
	}

	var h eventHeap
	for _, ev := range s.Events {
		heap.Push(&h, &item{ev: ev, due: start.Add(ev.At.D()).UnixNano()})
	}

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for h.Len() > 0 {
		top := h.Top()
		now := time.Now().UnixNano()
		if top.due <= now {
			it := heap.Pop(&h).(*item)
			apply(it.ev)
			if every := it.ev.Every.D(); every > 0 {
				next := it.due + int64(every)
				if time.Unix(0, next).Before(end) {
					it.due = next
					heap.Push(&h, it)
				}
			}
			continue
		}
		timer.Reset(time.Duration(top.due - now))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if !end.IsZero() {
		if wait := time.Until(end); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}
