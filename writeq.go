// ==========================================================================
//
// File Name:  writeq.go
//
// ==========================================================================

package srcml

import (
	"container/heap"
)

// requestHeap collects asynchronous parse results for presentation in the
// original order.
type requestHeap []*ParseRequest

func (h requestHeap) Len() int {
	return len(h)
}
func (h requestHeap) Less(i, j int) bool {
	return h[i].Index < h[j].Index
}
func (h requestHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}
func (h *requestHeap) Push(x interface{}) {
	*h = append(*h, x.(*ParseRequest))
}
func (h *requestHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// WriteQueue serializes completed parse requests into the archive. In
// strict-order mode a heap keyed on arrival index restores input order; in
// relaxed mode units are written in completion order. A single writer
// goroutine owns the archive sink.
type WriteQueue struct {
	arch    *Archive
	pq      *ParseQueue
	in      chan *ParseRequest
	done    chan struct{}
	relaxed bool
	started bool
}

// NewWriteQueue launches the writer goroutine. The queue depth bounds how
// far workers can run ahead of the sink.
func NewWriteQueue(arch *Archive, relaxed bool) *WriteQueue {

	depth := NumProcs() + 1
	if d := ChanDepth(); d > depth {
		depth = d
	}

	wq := &WriteQueue{
		arch:    arch,
		in:      make(chan *ParseRequest, depth),
		done:    make(chan struct{}),
		relaxed: relaxed,
	}

	go wq.drain()

	return wq
}

// push hands a completed request to the writer, blocking when the queue is
// full so the parse queue cannot outrun it.
func (wq *WriteQueue) push(req *ParseRequest) {

	wq.in <- req
}

// drain restores original order with a heap, the unshuffle pattern: read
// several results before checking whether the next expected index has
// arrived, then release everything that is in order.
func (wq *WriteQueue) drain() {

	defer close(wq.done)

	hp := &requestHeap{}
	heap.Init(hp)

	next := 0
	delay := 0

	for req := range wq.in {

		if wq.relaxed {
			wq.write(req)
			continue
		}

		heap.Push(hp, req)

		if delay < HeapSize() {
			delay++
			continue
		}

		delay = 0

		for hp.Len() > 0 {

			curr := heap.Pop(hp).(*ParseRequest)

			if curr.Index > next {
				// not its turn yet, put it back and wait for more input
				heap.Push(hp, curr)
				break
			}

			wq.write(curr)

			if curr.Index == next {
				next++
			}
		}
	}

	// flush remainder of heap in index order
	for hp.Len() > 0 {
		curr := heap.Pop(hp).(*ParseRequest)
		wq.write(curr)
	}
}

// write serializes one request. The first successful unit fixes the
// framing: when more than one request was scheduled by then, the archive
// is promoted to full framing before anything is written.
func (wq *WriteQueue) write(req *ParseRequest) {

	if req.Err != nil {
		// full framing omits the unit and continues; solo framing has
		// nothing else to write, so the error stands as the result
		wq.arch.countError()
		wq.arch.setError(req.Err)
		return
	}

	if !wq.started {
		wq.started = true
		if wq.pq != nil && wq.pq.Scheduled() > 1 {
			wq.arch.promoteToFullArchive()
		}
	}

	if err := wq.arch.WriteUnit(req.Unit); err != nil {
		wq.arch.countError()
		return
	}

	if req.Unit != nil {
		wq.arch.AddLOC(req.Unit.LOC)
	}
}

// Stop flushes remaining in-order requests, closes the archive's outer
// element when full framing is active, and closes the sink.
func (wq *WriteQueue) Stop() error {

	close(wq.in)
	<-wq.done

	return wq.arch.Close()
}
