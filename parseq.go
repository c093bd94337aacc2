// ==========================================================================
//
// File Name:  parseq.go
//
// ==========================================================================

package srcml

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ParseRequest is one unit translation job. Producers fill the source and
// identification fields; Schedule assigns the arrival index; workers
// attach the parsed unit or an error.
type ParseRequest struct {
	Index    int
	Unit     *Unit
	Source   []byte
	Filename string
	Language string
	Err      error
}

// ParseQueue is the bounded work queue feeding the worker pool. Schedule
// blocks when the queue is full, which is what keeps producers from
// outrunning the writer.
type ParseQueue struct {
	arch *Archive
	wq   *WriteQueue
	in   chan *ParseRequest
	grp  *errgroup.Group

	scheduled int64
}

// NewParseQueue launches a pool of worker goroutines that pop requests,
// run the grammar and per-unit emission, and forward completed requests to
// the write queue. A non-positive thread count uses the package default.
func NewParseQueue(arch *Archive, threads int, wq *WriteQueue) *ParseQueue {

	if threads <= 0 {
		threads = NumProcs()
	}

	depth := threads + 1
	if d := ChanDepth(); d > depth {
		depth = d
	}

	pq := &ParseQueue{
		arch: arch,
		wq:   wq,
		in:   make(chan *ParseRequest, depth),
		grp:  new(errgroup.Group),
	}
	wq.pq = pq

	for i := 0; i < threads; i++ {
		pq.grp.Go(pq.worker)
	}

	return pq
}

// Schedule assigns the arrival index and enqueues the request, blocking
// while the queue is full.
func (pq *ParseQueue) Schedule(req *ParseRequest) {

	req.Index = int(atomic.AddInt64(&pq.scheduled, 1)) - 1
	pq.in <- req
}

// Scheduled returns the number of requests accepted so far.
func (pq *ParseQueue) Scheduled() int {

	return int(atomic.LoadInt64(&pq.scheduled))
}

// Wait closes the queue and returns once every scheduled request has been
// handed to the write queue.
func (pq *ParseQueue) Wait() error {

	close(pq.in)

	return pq.grp.Wait()
}

// worker handles one request at a time until the queue closes.
func (pq *ParseQueue) worker() error {

	for req := range pq.in {
		pq.process(req)
		pq.wq.push(req)
	}

	return nil
}

// process assigns the unit language, hashes, and parses. Failures ride on
// the request for the writer to surface in order.
func (pq *ParseQueue) process(req *ParseRequest) {

	unit := req.Unit
	if unit == nil {
		unit = pq.arch.NewUnit()
		req.Unit = unit
	}

	if unit.Filename == "" {
		unit.Filename = req.Filename
	}
	if unit.Language == "" {
		unit.Language = req.Language
	}
	if unit.Language == "" {
		unit.Language = pq.arch.languageFor(unit.Filename)
	}
	if unit.Language == "" {
		req.Err = ErrUnsetLanguage
		return
	}

	if err := unit.ParseSource(req.Source); err != nil {
		req.Err = err
	}
}
