package main

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/zeixcom/cause-effect/cause"
)

func main() {
	log.Print("Starting cause-effect stress run, please wait...")
	defer log.Print("Finished cause-effect stress run")

	cfgs := []stressConfig{
		{
			name:           "simple component",
			width:          10,
			totalLayers:    5,
			staticFraction: 1,
			nSources:       2,
			readFraction:   0.2,
			iterations:     600000,
		},
		{
			name:           "dynamic component",
			width:          10,
			totalLayers:    10,
			staticFraction: 0.75,
			nSources:       6,
			readFraction:   0.2,
			iterations:     15000,
		},
		{
			name:           "large web app",
			width:          1000,
			totalLayers:    12,
			staticFraction: 0.95,
			nSources:       4,
			readFraction:   1,
			iterations:     7000,
		},
		{
			name:           "wide dense",
			width:          1000,
			totalLayers:    5,
			staticFraction: 1,
			nSources:       25,
			readFraction:   1,
			iterations:     3000,
		},
		{
			name:           "deep",
			width:          5,
			totalLayers:    500,
			staticFraction: 1,
			nSources:       3,
			readFraction:   1,
			iterations:     500,
		},
		{
			name:           "very dynamic",
			width:          100,
			totalLayers:    15,
			staticFraction: 0.5,
			nSources:       6,
			readFraction:   1,
			iterations:     2000,
		},
	}

	type result struct {
		sum      int
		count    int64
		checksum uint64
		duration time.Duration
	}

	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.SetHeader([]string{
		"size", "nSources", "read%", "static%",
		"nTimes", "test", "time", "updateRate", "checksum", "title",
	})

	repeats := 5
	for _, cfg := range cfgs {
		log.Printf("Running '%s' config", cfg.name)
		counter := new(int64)
		graph := makeGraph(&makeGraphConfig{
			counter:        counter,
			width:          cfg.width,
			totalLayers:    cfg.totalLayers,
			nSources:       cfg.nSources,
			staticFraction: cfg.staticFraction,
		})

		runOnce := func() (int, uint64) {
			return runGraph(&runGraphConfig{
				graph:        graph,
				iterations:   cfg.iterations,
				readFraction: cfg.readFraction,
			})
		}
		// warm up
		runOnce()

		best := &result{duration: time.Hour}
		var firstChecksum uint64
		for i := 0; i < repeats; i++ {
			log.Printf("Running '%s' config, iteration %d/%d %d%%", cfg.name, i+1, repeats, (i+1)*100/repeats)
			*counter = 0
			start := time.Now()
			sum, checksum := runOnce()
			duration := time.Since(start)

			if i == 0 {
				firstChecksum = checksum
			} else if checksum != firstChecksum {
				log.Fatalf("'%s' run %d checksum mismatch: %x != %x", cfg.name, i, checksum, firstChecksum)
			}

			if duration < best.duration {
				best.duration = duration
				best.sum = sum
				best.count = *counter
				best.checksum = checksum
			}
		}

		makeTitle := func() string {
			sb := strings.Builder{}
			sb.WriteString(fmt.Sprintf("%dx%d %d sources", cfg.width, cfg.totalLayers, cfg.nSources))
			if cfg.staticFraction < 1 {
				sb.WriteString(" dynamic")
			}
			if cfg.readFraction < 1 {
				sb.WriteString(fmt.Sprintf(" read %0.2f%%", 100*cfg.readFraction))
			}
			return sb.String()
		}

		updateRate := float64(best.count) / (float64(best.duration) / float64(time.Millisecond))

		tbl.Append([]string{
			fmt.Sprintf("%dx%d", cfg.width, cfg.totalLayers),
			fmt.Sprint(cfg.nSources),
			fmt.Sprint(cfg.readFraction),
			fmt.Sprint(cfg.staticFraction),
			humanize.Comma(cfg.iterations),
			cfg.name,
			fmt.Sprint(best.duration),
			humanize.Comma(int64(updateRate)),
			fmt.Sprintf("%016x", best.checksum),
			makeTitle(),
		})
	}
	tbl.Render()
}

type stressConfig struct {
	name           string  // friendly name for the test, should be unique
	width          int64   // width of dependency graph to construct
	totalLayers    int64   // depth of dependency graph to construct
	staticFraction float64 // fraction of nodes with a fixed dependency set
	nSources       int64   // number of sources feeding each node
	readFraction   float64 // fraction of leaves read back per iteration
	iterations     int64   // number of write+read iterations
}

type stressGraph struct {
	rs      *cause.ReactiveSystem
	sources []*cause.StateSignal[int]
	layers  [][]*cause.MemoSignal[int]
}

type makeGraphConfig struct {
	counter                      *int64
	width, totalLayers, nSources int64
	staticFraction               float64
}

func makeGraph(cfg *makeGraphConfig) *stressGraph {
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		log.Panic(err)
	})
	sources := make([]*cause.StateSignal[int], cfg.width)
	for i := range sources {
		sources[i] = cause.State(rs, i)
	}
	graph := &stressGraph{rs: rs, sources: sources}
	graph.layers = makeDependentRows(&makeDependentRowsConfig{
		rs:             rs,
		sources:        sources,
		numRows:        cfg.totalLayers - 1,
		counter:        cfg.counter,
		staticFraction: cfg.staticFraction,
		nSources:       cfg.nSources,
	})
	return graph
}

type runGraphConfig struct {
	graph        *stressGraph
	iterations   int64
	readFraction float64
}

// runGraph writes one source per iteration and reads some or all of the
// leaves. Returns the final leaf sum and an xxhash over every value read,
// so repeated runs can be checked for identical observable behavior.
func runGraph(cfg *runGraphConfig) (int, uint64) {
	random := rand.New(rand.NewSource(0))
	leaves := cfg.graph.layers[len(cfg.graph.layers)-1]
	skipCount := int(math.Round(float64(len(leaves)) * (1 - cfg.readFraction)))
	readLeaves := removeElems(leaves, skipCount, random)

	digest := xxhash.New()
	var buf [8]byte
	observe := func(v int) int {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		digest.Write(buf[:])
		return v
	}

	sources := cfg.graph.sources
	for i := 0; i < int(cfg.iterations); i++ {
		sourceDex := i % len(sources)
		if err := sources[sourceDex].SetValue(i + sourceDex); err != nil {
			log.Panic(err)
		}

		for _, leaf := range readLeaves {
			v, err := leaf.Value()
			if err != nil {
				log.Panic(err)
			}
			observe(v)
		}
	}

	sum := 0
	for _, leaf := range readLeaves {
		v, err := leaf.Value()
		if err != nil {
			log.Panic(err)
		}
		sum += observe(v)
	}
	return sum, digest.Sum64()
}

func removeElems[T any](src []T, rmCount int, random *rand.Rand) []T {
	copyWithRemovals := make([]T, len(src))
	copy(copyWithRemovals, src)
	for i := 0; i < rmCount; i++ {
		rmDex := random.Intn(len(copyWithRemovals))
		copyWithRemovals[rmDex] = copyWithRemovals[len(copyWithRemovals)-1]
		copyWithRemovals = copyWithRemovals[:len(copyWithRemovals)-1]
	}
	return copyWithRemovals
}

type makeDependentRowsConfig struct {
	rs                *cause.ReactiveSystem
	sources           []*cause.StateSignal[int]
	numRows, nSources int64
	counter           *int64
	staticFraction    float64
}

func makeDependentRows(cfg *makeDependentRowsConfig) [][]*cause.MemoSignal[int] {
	prevRow := make([]reader, len(cfg.sources))
	for i, s := range cfg.sources {
		prevRow[i] = stateReader{s}
	}

	random := rand.New(rand.NewSource(0))
	rows := make([][]*cause.MemoSignal[int], cfg.numRows)
	for l := int64(0); l < cfg.numRows; l++ {
		row := makeRow(&rowConfig{
			rs:             cfg.rs,
			sources:        prevRow,
			counter:        cfg.counter,
			staticFraction: cfg.staticFraction,
			nSources:       cfg.nSources,
			rand:           random,
		})
		rows[l] = row
		prevRow = make([]reader, len(row))
		for i, m := range row {
			prevRow[i] = memoReader{m}
		}
	}
	return rows
}

// reader erases the state/memo distinction so rows can feed on either.
type reader interface {
	read() int
}

type stateReader struct{ s *cause.StateSignal[int] }

func (r stateReader) read() int { return r.s.Value() }

type memoReader struct{ m *cause.MemoSignal[int] }

func (r memoReader) read() int {
	v, err := r.m.Value()
	if err != nil {
		log.Panic(err)
	}
	return v
}

type rowConfig struct {
	rs             *cause.ReactiveSystem
	sources        []reader
	counter        *int64
	staticFraction float64
	nSources       int64
	rand           *rand.Rand
}

func makeRow(cfg *rowConfig) []*cause.MemoSignal[int] {
	row := make([]*cause.MemoSignal[int], len(cfg.sources))

	for myDex := range cfg.sources {
		mySources := make([]reader, 0, cfg.nSources)
		for sourceDex := 0; sourceDex < int(cfg.nSources); sourceDex++ {
			x := (myDex + sourceDex) % len(cfg.sources)
			mySources = append(mySources, cfg.sources[x])
		}

		staticNode := cfg.rand.Float64() < cfg.staticFraction
		if staticNode {
			// static node, always references all its sources
			row[myDex] = cause.Memo(cfg.rs, func(prev int) (int, error) {
				*cfg.counter++
				sum := 0
				for _, source := range mySources {
					sum += source.read()
				}
				return sum, nil
			})
		} else {
			first := mySources[0]
			tail := mySources[1:]
			row[myDex] = cause.Memo(cfg.rs, func(prev int) (int, error) {
				*cfg.counter++
				sum := first.read()
				shouldDrop := sum&0x1 > 0
				dropDex := sum % len(tail)

				for i := 0; i < len(tail); i++ {
					if shouldDrop && i == dropDex {
						continue
					}
					sum += tail[i].read()
				}
				return sum, nil
			})
		}
	}

	return row
}
