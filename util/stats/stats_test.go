package stats

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecord(t *testing.T) {
	var op Op
	op.Record(time.Now().Add(-2 * time.Millisecond))
	op.Record(time.Now())
	assert.Equal(t, uint64(2), op.Count())
	assert.Greater(t, op.load().MicrosPerOp(), 0.0)

	op.Reset()
	assert.Equal(t, uint64(0), op.Count())
	assert.Equal(t, 0.0, op.load().MicrosPerOp())
}

func TestFormatTable(t *testing.T) {
	ops := make([]Op, 2)
	ops[0].Record(time.Now())
	s := FormatTable([]string{"bread", "bwrite"}, ops)
	assert.Contains(t, s, "bread")
	assert.Contains(t, s, "bwrite")
	assert.Contains(t, s, "total")
}

func TestWriteTableMismatch(t *testing.T) {
	assert.Panics(t, func() {
		WriteTable([]string{"a"}, nil, new(bytes.Buffer))
	})
}

func TestWriteCounters(t *testing.T) {
	buf := new(bytes.Buffer)
	WriteCounters([]Counter{{"hits", 3}, {"misses", 1}}, buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[1], "hits")
}
