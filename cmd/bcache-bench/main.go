package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/mit-pdos/go-journal/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tchajed/goose/machine/disk"
	"golang.org/x/sync/errgroup"

	"github.com/mit-pdos/go-bcache/bcache"
	"github.com/mit-pdos/go-bcache/metrics"
	"github.com/mit-pdos/go-bcache/super"
	"github.com/mit-pdos/go-bcache/ticks"
	"github.com/mit-pdos/go-bcache/util/timed_disk"
)

type config struct {
	duration time.Duration
	nthread  int
	nblock   uint64
	writePct int
	logged   bool
}

// testSequence reads one random block and, some of the time, updates a
// counter in it, either in place or through the log.
func testSequence(fs *super.FsSuper, cfg config, rnd *rand.Rand) error {
	bn := fs.DataStart() + uint64(rnd.Int63n(int64(cfg.nblock)))
	update := rnd.Intn(100) < cfg.writePct
	if update && cfg.logged {
		fs.Log.BeginOp()
	}
	b, err := fs.Cache.Bread(fs.Dev, bn)
	if err != nil {
		return err
	}
	if update {
		n := binary.LittleEndian.Uint64(b.Data)
		binary.LittleEndian.PutUint64(b.Data, n+1)
		if cfg.logged {
			fs.Log.Write(b)
		} else if err := fs.Cache.Bwrite(b); err != nil {
			fs.Cache.Brelse(b)
			return err
		}
	}
	fs.Cache.Brelse(b)
	if update && cfg.logged {
		return fs.Log.EndOp()
	}
	return nil
}

func client(fs *super.FsSuper, cfg config, duration time.Duration, tid int) (int, error) {
	rnd := rand.New(rand.NewSource(int64(tid)))
	start := time.Now()
	i := 0
	for {
		if err := testSequence(fs, cfg, rnd); err != nil {
			return i, err
		}
		i++
		if time.Since(start) >= duration {
			break
		}
	}
	return i, nil
}

func run(fs *super.FsSuper, cfg config, duration time.Duration) (int, error) {
	counts := make([]int, cfg.nthread)
	var g errgroup.Group
	for i := 0; i < cfg.nthread; i++ {
		tid := i
		g.Go(func() error {
			n, err := client(fs, cfg, duration, tid)
			counts[tid] = n
			return err
		})
	}
	err := g.Wait()
	n := 0
	for _, c := range counts {
		n += c
	}
	return n, err
}

func serveMetrics(addr string, bc *bcache.Cache) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(bc))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		err := http.ListenAndServe(addr, mux)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics: %v", err)
		}
	}()
}

func main() {
	var cfg config
	var diskfile string
	var diskBlocks uint64
	var nbuf, nbucket uint64
	var dumpStats bool
	var metricsAddr string
	var tick time.Duration
	flag.DurationVar(&cfg.duration, "benchtime", 10*time.Second, "time to run each iteration for")
	flag.IntVar(&cfg.nthread, "threads", 1, "number of threads to run")
	flag.Uint64Var(&cfg.nblock, "blocks", 64, "number of distinct blocks to touch")
	flag.IntVar(&cfg.writePct, "writes", 10, "percentage of accesses that update the block")
	flag.BoolVar(&cfg.logged, "log", false, "update blocks through the log instead of in place")
	flag.StringVar(&diskfile, "disk", "", "disk image (empty for MemDisk)")
	flag.Uint64Var(&diskBlocks, "size", 10*1000, "size of disk (in blocks)")
	flag.Uint64Var(&nbuf, "nbuf", 0, "number of cache buffers (0 for default)")
	flag.Uint64Var(&nbucket, "nbucket", 0, "number of hash buckets (0 for default)")
	flag.DurationVar(&tick, "tick", 0, "stamp buffers with a timer of this period (0 for a logical clock)")
	flag.BoolVar(&dumpStats, "stats", false, "dump stats to stderr at end")
	flag.StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address")
	flag.Uint64Var(&util.Debug, "debug", 0, "debug level (higher is more verbose)")
	flag.Parse()
	if cfg.nthread < 1 {
		panic("invalid start")
	}

	var err error
	var d disk.Disk
	if diskfile == "" {
		d = disk.NewMemDisk(diskBlocks)
	} else {
		d, err = disk.NewFileDisk(diskfile, diskBlocks)
		if err != nil {
			panic(fmt.Errorf("could not create disk: %w", err))
		}
	}
	td := timed_disk.New(d)

	bcfg := bcache.Config{NBuf: nbuf, NBucket: nbucket}
	if tick > 0 {
		tk := ticks.MkTicker()
		tk.Start(tick)
		defer tk.Stop()
		bcfg.Clock = tk
	}
	fs, err := super.MkFsSuperDisk(td, bcfg)
	if err != nil {
		panic(err)
	}
	defer fs.Shutdown()
	if cfg.nblock == 0 || cfg.nblock > fs.NData() {
		fmt.Fprintf(os.Stderr, "-blocks must be in [1, %d]\n", fs.NData())
		os.Exit(1)
	}
	if metricsAddr != "" {
		serveMetrics(metricsAddr, fs.Cache)
	}

	// warmup (skip if running for very little time, for example when using a
	// duration of 0s to run just one iteration)
	if cfg.duration > 500*time.Millisecond {
		if _, err := run(fs, cfg, 500*time.Millisecond); err != nil {
			panic(err)
		}
		fs.Cache.ResetStats()
		td.ResetStats()
	}

	count, err := run(fs, cfg, cfg.duration)
	if err != nil {
		panic(err)
	}
	fmt.Printf("bcache-bench: %v %v ops/sec\n", cfg.nthread, float64(count)/cfg.duration.Seconds())
	if dumpStats {
		fs.Cache.WriteStats(os.Stderr)
		td.WriteStats(os.Stderr)
	}
}
