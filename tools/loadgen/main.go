package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/tendermint/tendermint/libs/log"
)

var logger = log.NewNopLogger()

func main() {
	var durationInt, connections, rate int
	var verbose bool
	var outputFormat string

	flagSet := flag.NewFlagSet("loadgen", flag.ExitOnError)
	flagSet.IntVar(&durationInt, "T", 10, "exit after the specified amount of time in seconds")
	flagSet.IntVar(&connections, "c", 1, "connections to keep open per endpoint")
	flagSet.IntVar(&rate, "r", 1000, "txs per second to send on each connection")
	flagSet.StringVar(&outputFormat, "output-format", "plain", "output format: plain or json")
	flagSet.BoolVar(&verbose, "v", false, "verbose logging")

	flagSet.Usage = func() {
		fmt.Println(`Blast a set of nodes with transactions at a specified rate.

Usage:
	loadgen [-c 1] [-T 10] [-r 1000] [endpoints]

Examples:
	loadgen localhost:26657`)
		fmt.Println("Flags:")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if flagSet.NArg() == 0 {
		flagSet.Usage()
		os.Exit(1)
	}

	if verbose {
		if outputFormat == "json" {
			fmt.Fprintln(os.Stderr, "can't use verbose mode with json output")
			os.Exit(1)
		}
		logger = log.NewTMLogger(log.NewSyncWriter(os.Stdout))
	}

	duration := time.Duration(durationInt) * time.Second
	endpoints := strings.Split(flagSet.Arg(0), ",")

	transacters := make([]*transacter, len(endpoints))
	for i, e := range endpoints {
		t := newTransacter(e, connections, rate)
		t.SetLogger(logger)
		if err := t.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start transacter against %s: %v\n", e, err)
			os.Exit(1)
		}
		transacters[i] = t
	}

	timeStart := time.Now()
	logger.Info("Time started", "t", timeStart)

	time.Sleep(duration)
	for _, t := range transacters {
		t.Stop()
	}
	timeStop := time.Now()
	logger.Info("Time stopped", "t", timeStop)

	printStatistics(transacters, timeStop.Sub(timeStart), outputFormat)
}

// printStatistics merges the per-connection send histograms and reports the
// achieved throughput.
func printStatistics(transacters []*transacter, elapsed time.Duration, outputFormat string) {
	merged := metrics.NewHistogram(metrics.NewUniformSample(1000))
	var total int64
	for _, t := range transacters {
		for _, v := range t.sentPerSec.Sample().Values() {
			merged.Update(v)
			total += v
		}
	}

	if outputFormat == "json" {
		fmt.Printf(`{"total_sent": %d, "elapsed_sec": %.2f, "txs_per_sec_avg": %.0f, "txs_per_sec_max": %d, "txs_per_sec_min": %d}`+"\n",
			total, elapsed.Seconds(), merged.Mean(), merged.Max(), merged.Min())
		return
	}

	fmt.Println("Stats          Avg       Max       Min")
	fmt.Printf("Txs/sec     %6.0f    %6d    %6d\n", merged.Mean(), merged.Max(), merged.Min())
	fmt.Printf("Total sent  %6d over %.1fs\n", total, elapsed.Seconds())
}
