package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
	"github.com/zeixcom/cause-effect/cause"
)

const (
	itersKey   = "iters"
	profileKey = "profile"
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark",
		Usage: "Measure propagation latency across graph shapes",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  itersKey,
				Usage: "Writes per graph shape",
				Value: 100,
			},
			&cli.StringFlag{
				Name:  profileKey,
				Usage: "Write a CPU profile to this file",
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

var (
	ww = []int{1, 10, 100, 1_000}
	hh = []int{1, 10, 100, 1_000}
)

func run(ctx context.Context, cmd *cli.Command) error {
	iters := int(cmd.Uint(itersKey))

	if path := cmd.String(profileKey); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	totalNodes := 0
	for _, w := range ww {
		for _, h := range hh {
			totalNodes += w * h
		}
	}
	log.Printf("warming up, %s graph nodes across %d shapes", humanize.Comma(int64(totalNodes)), len(ww)*len(hh))

	benchmarkPropagate(iters, true)
	benchmarkBatch(iters, true)
	return nil
}

// benchmarkPropagate builds w independent memo chains of depth h off one
// state and times a single write reaching every effect at the ends.
func benchmarkPropagate(iters int, shouldRender bool) {
	tbl := table.NewWriter()
	tbl.SetTitle("Propagate")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})

	for _, w := range ww {
		for _, h := range hh {
			tach := tachymeter.New(&tachymeter.Config{Size: iters})

			rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
				log.Panic(err)
			})
			src := cause.State(rs, 1)
			for i := 0; i < w; i++ {
				last := chain(rs, src, h)
				cause.Effect(rs, func() (cause.Cleanup, error) {
					_, err := last.Value()
					return nil, err
				})
			}

			for i := 0; i < iters; i++ {
				start := time.Now()
				if err := src.SetValue(src.Value() + 1); err != nil {
					log.Panic(err)
				}
				tach.AddTime(time.Since(start))
			}

			calc := tach.Calc()
			tbl.AppendRows([]table.Row{
				{
					fmt.Sprintf("propagate: %d * %d", w, h),
					calc.Time.Avg,
					calc.Time.Min,
					calc.Time.P75,
					calc.Time.P99,
					calc.Time.Max,
				},
			})
		}
	}

	if shouldRender {
		tbl.Render()
	}
}

// benchmarkBatch times n writes to n states applied atomically against a
// single effect observing all of them.
func benchmarkBatch(iters int, shouldRender bool) {
	tbl := table.NewWriter()
	tbl.SetTitle("Batch")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})

	for _, n := range ww {
		tach := tachymeter.New(&tachymeter.Config{Size: iters})

		rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
			log.Panic(err)
		})
		states := make([]*cause.StateSignal[int], n)
		for i := range states {
			states[i] = cause.State(rs, i)
		}
		cause.Effect(rs, func() (cause.Cleanup, error) {
			for _, s := range states {
				s.Value()
			}
			return nil, nil
		})

		for i := 0; i < iters; i++ {
			start := time.Now()
			rs.Batch(func() {
				for _, s := range states {
					s.SetValue(s.Value() + 1)
				}
			})
			tach.AddTime(time.Since(start))
		}

		calc := tach.Calc()
		tbl.AppendRows([]table.Row{
			{
				fmt.Sprintf("batch: %d writes", n),
				calc.Time.Avg,
				calc.Time.Min,
				calc.Time.P75,
				calc.Time.P99,
				calc.Time.Max,
			},
		})
	}

	if shouldRender {
		tbl.Render()
	}
}

func chain(rs *cause.ReactiveSystem, src *cause.StateSignal[int], depth int) *cause.MemoSignal[int] {
	last := cause.Memo(rs, func(prev int) (int, error) {
		return src.Value() + 1, nil
	})
	for j := 1; j < depth; j++ {
		prev := last
		last = cause.Memo(rs, func(old int) (int, error) {
			v, err := prev.Value()
			if err != nil {
				return 0, err
			}
			return v + 1, nil
		})
	}
	return last
}
