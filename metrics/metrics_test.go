package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-bcache/bcache"
	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/devsw"
)

func TestCollector(t *testing.T) {
	tbl := devsw.MkTable()
	require.NoError(t, tbl.Mount(common.ROOTDEV, disk.NewMemDisk(16)))
	c := bcache.MkCache(tbl, bcache.Config{NBuf: 4, NBucket: 2})
	for i := 0; i < 3; i++ {
		b, err := c.Bread(common.ROOTDEV, 5)
		require.NoError(t, err)
		c.Brelse(b)
	}

	col := NewCollector(c)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(col))
	assert.Equal(t, 7, testutil.CollectAndCount(col))

	expected := `
# HELP bcache_hits_total Lookups that found the block cached.
# TYPE bcache_hits_total counter
bcache_hits_total 2
# HELP bcache_misses_total Lookups that recycled a buffer.
# TYPE bcache_misses_total counter
bcache_misses_total 1
# HELP bcache_buffers Number of buffers in the pool.
# TYPE bcache_buffers gauge
bcache_buffers 4
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"bcache_hits_total", "bcache_misses_total", "bcache_buffers")
	assert.NoError(t, err)
}
