// ==========================================================================
//
// File Name:  srcml.go
//
// ==========================================================================

// Package srcml translates C, C++, C#, and Java source code into a lossless
// XML representation and back. The XML form annotates the original byte
// stream with syntactic structure while preserving every source byte, so
// extraction reproduces the input verbatim. Multiple source files can be
// packaged into a single archive document, or a single file can be emitted
// as a solo document with no enclosing wrapper.
//
// The concurrent create path partitions work per translation unit: producer
// goroutines schedule parse requests onto a bounded queue, a pool of worker
// goroutines runs the grammar and emits per-unit XML fragments, and a single
// writer goroutine restores input order through a heap before serializing
// units into the archive.
package srcml

import (
	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
)

// Version is the library version, echoed as the default revision attribute.
const Version = "0.9.5"

// package tunings, set once before pipelines are created
var (
	numProcs  = 0
	chanDepth = 0
	heapSize  = 0
)

// SetTunings overrides the worker count, channel depth, and unshuffler heap
// size. Zero values keep the computed defaults.
func SetTunings(procs, depth, heap int) {

	if procs > 0 {
		numProcs = procs
	}
	if depth > 0 {
		chanDepth = depth
	}
	if heap > 0 {
		heapSize = heap
	}
}

// NumProcs returns the number of parser workers to launch. The default of 4
// is capped by the machine's logical core count.
func NumProcs() int {

	if numProcs > 0 {
		return numProcs
	}

	ncpu := cpuid.CPU.LogicalCores
	if ncpu < 1 {
		ncpu = 1
	}

	procs := 4
	if procs > ncpu {
		procs = ncpu
	}

	return procs
}

// ChanDepth returns the depth of the communication channels between pipeline
// stages. Machines with more memory get deeper buffers.
func ChanDepth() int {

	if chanDepth > 0 {
		return chanDepth
	}

	gigabytes := memory.TotalMemory() / (1024 * 1024 * 1024)

	switch {
	case gigabytes >= 32:
		return 32
	case gigabytes >= 16:
		return 24
	default:
		return 16
	}
}

// HeapSize returns the number of completed requests the writer reads before
// checking whether the next expected index has arrived.
func HeapSize() int {

	if heapSize > 0 {
		return heapSize
	}

	return 8
}
