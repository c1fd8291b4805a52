// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// The mtxstress command hammers an mtx.Mutex from many goroutines and
// reports what happened.
//
// Every flag can also be set with an MTXSTRESS_ environment variable, such
// as MTXSTRESS_WORKERS=32.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tailscale/mtx"
	"github.com/tailscale/mtx/critsec"
	"github.com/tailscale/mtx/envknob"
	"github.com/tailscale/mtx/mtxmetrics"
)

var args struct {
	mode     string
	section  string
	workers  int
	duration time.Duration
	timeout  time.Duration
	hold     time.Duration
	depth    int
	metrics  string
	linger   time.Duration
	panicky  bool
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("mtxstress", flag.ExitOnError)
	fs.StringVar(&args.mode, "mode", "recursive|try|timed", "mutex mode, as flag names joined by |")
	fs.StringVar(&args.section, "section", "std", "critical section kind: "+strings.Join(critsec.Names(), ", "))
	fs.IntVar(&args.workers, "workers", 8, "number of goroutines contending for the mutex")
	fs.DurationVar(&args.duration, "duration", 5*time.Second, "how long to run")
	fs.DurationVar(&args.timeout, "timeout", time.Millisecond, "timed lock timeout per attempt, for timed modes; 0 means use Lock")
	fs.DurationVar(&args.hold, "hold", 0, "how long each worker sleeps while holding the mutex")
	fs.IntVar(&args.depth, "depth", 2, "acquisitions per turn, for recursive modes")
	fs.StringVar(&args.metrics, "metrics", "", "if non-empty, address to serve Prometheus /metrics on")
	fs.DurationVar(&args.linger, "linger", 0, "how long to keep serving /metrics after the run")
	fs.BoolVar(&args.panicky, "panic-on-misuse", false, "panic on mutex usage errors instead of failing the run; same as MTX_PANIC_ON_MISUSE=true")
	return fs
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	root := &ffcli.Command{
		Name:       "mtxstress",
		ShortUsage: "mtxstress [flags]",
		ShortHelp:  "Stress test an mtx.Mutex and print a JSON report",
		FlagSet:    newFlagSet(),
		Options:    []ff.Option{ff.WithEnvVarPrefix("MTXSTRESS")},
		Exec:       runMain,
	}
	if err := root.ParseAndRun(context.Background(), os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func runMain(ctx context.Context, rest []string) error {
	if len(rest) > 0 {
		return fmt.Errorf("unexpected arguments: %q", rest)
	}
	if args.panicky {
		envknob.Setenv("MTX_PANIC_ON_MISUSE", "true")
	}
	envknob.LogCurrent(log.Printf)

	mode, err := mtx.ParseMode(args.mode)
	if err != nil {
		return err
	}
	newSection, err := critsec.Lookup(args.section)
	if err != nil {
		return err
	}
	cfg := stressConfig{
		mode:     mode,
		section:  args.section,
		workers:  args.workers,
		duration: args.duration,
		timeout:  args.timeout,
		hold:     args.hold,
		depth:    args.depth,
	}
	m, err := mtx.New(mode, &mtx.Options{
		Name:    "stress",
		Section: newSection(),
		Logf:    log.Printf,
	})
	if err != nil {
		return err
	}
	defer m.Destroy()

	if args.metrics != "" {
		stop, err := serveMetrics(args.metrics, m)
		if err != nil {
			return err
		}
		defer stop()
	}

	rep, err := runStress(ctx, m, cfg)
	if err != nil {
		return err
	}
	out, err := jsonv2.Marshal(rep, jsontext.WithIndent("\t"))
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", out)

	if args.metrics != "" && args.linger > 0 {
		log.Printf("serving metrics for another %v", args.linger)
		time.Sleep(args.linger)
	}
	return nil
}

// serveMetrics serves m's metrics on addr until stop is called.
func serveMetrics(addr string, m *mtx.Mutex) (stop func(), err error) {
	reg := prometheus.NewRegistry()
	col := mtxmetrics.NewCollector("mtx", log.Printf)
	if err := col.Add(m); err != nil {
		return nil, err
	}
	reg.MustRegister(col)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()
	log.Printf("serving metrics on http://%v/metrics", ln.Addr())
	return func() { srv.Close() }, nil
}
