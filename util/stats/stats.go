// Package stats tracks per-operation counts and latencies.
package stats

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rodaine/table"
)

type Op struct {
	count uint64
	nanos uint64
}

// Record one operation that began at start. Meant to be deferred:
//
//	defer op.Record(time.Now())
func (op *Op) Record(start time.Time) {
	atomic.AddUint64(&op.count, 1)
	dur := time.Since(start)
	atomic.AddUint64(&op.nanos, uint64(dur.Nanoseconds()))
}

func (op *Op) Count() uint64 {
	return atomic.LoadUint64(&op.count)
}

func (op *Op) Reset() {
	atomic.StoreUint64(&op.count, 0)
	atomic.StoreUint64(&op.nanos, 0)
}

func (op *Op) load() Op {
	return Op{
		count: atomic.LoadUint64(&op.count),
		nanos: atomic.LoadUint64(&op.nanos),
	}
}

func (op Op) MicrosPerOp() float64 {
	if op.count == 0 {
		return 0
	}
	return float64(op.nanos) / float64(op.count) / 1e3
}

// Counter is a row without latency, such as a cache hit count.
type Counter struct {
	Name  string
	Value uint64
}

func WriteTable(names []string, ops []Op, w io.Writer) {
	if len(names) != len(ops) {
		panic("mismatched names and ops lists")
	}
	tbl := table.New("op", "count", "us")
	var totalOp Op
	for i, name := range names {
		op := ops[i].load()
		totalOp.count += op.count
		totalOp.nanos += op.nanos
		tbl.AddRow(name, op.count, fmt.Sprintf("%0.1f us/op", op.MicrosPerOp()))
	}
	totalMicros := float64(totalOp.nanos) / 1e3
	tbl.AddRow("total", totalOp.count, fmt.Sprintf("%0.1f us", totalMicros))
	tbl.WithWriter(w).Print()
}

func WriteCounters(counters []Counter, w io.Writer) {
	tbl := table.New("counter", "value")
	for _, c := range counters {
		tbl.AddRow(c.Name, c.Value)
	}
	tbl.WithWriter(w).Print()
}

func FormatTable(names []string, ops []Op) string {
	buf := new(bytes.Buffer)
	WriteTable(names, ops, buf)
	return buf.String()
}
