// Package bench implements `nr bench`, a performance testing tool for the
// sample replicated data structures in github.com/nrlog/nr/lib/nrtest.
package bench

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nrlog/nr/lib/nr"
	"github.com/nrlog/nr/lib/nrtest"
)

var (
	Cmd = &cobra.Command{
		Use:     "bench",
		Short:   "Run throughput/latency benchmarks against Counter and HashMap replicas",
		PreRunE: processConfig,
		RunE:    run,
	}

	threads      int
	replicas     int
	duration     time.Duration
	logCapacity  uint64
	batchSize    uint32
	skip         []string
	csvPath      string
)

func init() {
	key := "threads"
	Cmd.Flags().Int(key, 8, wrapString("Number of concurrent threads per replica submitting operations"))
	key = "replicas"
	Cmd.Flags().Int(key, 2, wrapString("Number of replicas registered against the shared log"))
	key = "duration"
	Cmd.Flags().Duration(key, 2*time.Second, wrapString("How long to run each benchmark for"))
	key = "log-capacity"
	Cmd.Flags().Uint64(key, 64*1024, wrapString("Log capacity to configure (must be a power of two)"))
	key = "batch-size"
	Cmd.Flags().Uint32(key, 32, wrapString("Per-thread combiner batch size"))
	key = "skip"
	Cmd.Flags().String(key, "", wrapString("Benchmarks to skip (comma separated - e.g. counter,hashmap)"))
	key = "csv"
	Cmd.Flags().String(key, "", wrapString("Optional path to save benchmark results as CSV"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	threads = viper.GetInt("threads")
	replicas = viper.GetInt("replicas")
	duration = viper.GetDuration("duration")
	logCapacity = viper.GetUint64("log-capacity")
	batchSize = uint32(viper.GetUint32("batch-size"))
	if s := viper.GetString("skip"); s != "" {
		skip = strings.Split(s, ",")
	}
	csvPath = viper.GetString("csv")
	return nil
}

func shouldSkip(name string) bool {
	for _, s := range skip {
		if s == name {
			return true
		}
	}
	return false
}

type result struct {
	name string
	res  nrtest.BenchResult
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("nr bench - throughput/latency benchmarks")
	fmt.Println()
	fmt.Printf("Threads/replica: %d   Replicas: %d   Duration: %s   Log capacity: %d   Batch size: %d\n",
		threads, replicas, duration, logCapacity, batchSize)
	fmt.Println()

	cfg := nr.DefaultConfig()
	cfg.LogCapacity = logCapacity
	cfg.BatchSize = batchSize
	if cfg.MaxReplicas < uint32(replicas) {
		cfg.MaxReplicas = uint32(replicas)
	}
	if cfg.MaxThreadsPerReplica < uint32(threads) {
		cfg.MaxThreadsPerReplica = uint32(threads)
	}

	var results []result

	if !shouldSkip("counter") {
		r := benchCounter(cfg)
		results = append(results, r)
		printResult(r)
	}

	if !shouldSkip("hashmap") {
		r := benchHashMap(cfg)
		results = append(results, r)
		printResult(r)
	}

	if csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

func benchCounter(cfg nr.Config) result {
	l, err := nr.NewLog[nrtest.CounterOp](cfg, "bench-counter")
	if err != nil {
		fmt.Fprintf(os.Stderr, "counter: NewLog: %v\n", err)
		return result{name: "counter"}
	}

	tokens := make([]nr.ThreadToken, 0, replicas*threads)
	replicaOf := make([]*nr.Replica[nrtest.CounterOp, nrtest.CounterReadOp, int64], 0, replicas)
	for i := 0; i < replicas; i++ {
		rep, err := nr.NewReplica[nrtest.CounterOp, nrtest.CounterReadOp, int64](l, &nrtest.Counter{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "counter: NewReplica: %v\n", err)
			continue
		}
		replicaOf = append(replicaOf, rep)
		for j := 0; j < threads; j++ {
			tkn, err := rep.Register()
			if err != nil {
				fmt.Fprintf(os.Stderr, "counter: Register: %v\n", err)
				continue
			}
			tokens = append(tokens, tkn)
		}
	}

	res := nrtest.RunBench(len(tokens), duration, func(worker int) {
		rep := replicaOf[worker/threads]
		rep.ExecuteMut(nrtest.CounterOp{Delta: 1}, tokens[worker])
	})

	return result{name: "counter", res: res}
}

func benchHashMap(cfg nr.Config) result {
	l, err := nr.NewLog[nrtest.HashMapOp](cfg, "bench-hashmap")
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashmap: NewLog: %v\n", err)
		return result{name: "hashmap"}
	}

	tokens := make([]nr.ThreadToken, 0, replicas*threads)
	replicaOf := make([]*nr.Replica[nrtest.HashMapOp, nrtest.HashMapReadOp, nrtest.HashMapResult], 0, replicas)
	for i := 0; i < replicas; i++ {
		rep, err := nr.NewReplica[nrtest.HashMapOp, nrtest.HashMapReadOp, nrtest.HashMapResult](l, nrtest.NewHashMap())
		if err != nil {
			fmt.Fprintf(os.Stderr, "hashmap: NewReplica: %v\n", err)
			continue
		}
		replicaOf = append(replicaOf, rep)
		for j := 0; j < threads; j++ {
			tkn, err := rep.Register()
			if err != nil {
				fmt.Fprintf(os.Stderr, "hashmap: Register: %v\n", err)
				continue
			}
			tokens = append(tokens, tkn)
		}
	}

	res := nrtest.RunBench(len(tokens), duration, func(worker int) {
		rep := replicaOf[worker/threads]
		key := fmt.Sprintf("key-%d", worker%1024)
		if worker%5 == 0 {
			rep.Execute(nrtest.HashMapReadOp{Key: key}, tokens[worker])
		} else {
			rep.ExecuteMut(nrtest.HashMapOp{Key: key, Value: []byte("v")}, tokens[worker])
		}
	})

	return result{name: "hashmap", res: res}
}

func printResult(r result) {
	if r.res.Ops == 0 {
		fmt.Printf("%-12sskipped\n", r.name)
		return
	}
	fmt.Printf("%-12s%.0f ops/sec\tmean=%s\tp_max=%s\n",
		r.name, r.res.OpsPerSecond(),
		time.Duration(int64(r.res.Latency.Mean)),
		time.Duration(int64(r.res.Latency.Max)))
}

func writeCSV(path string, results []result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{"Test", "Ops", "OpsPerSec", "MeanNs", "MaxNs", "StdDevNs", "Threads", "Replicas", "LogCapacity", "BatchSize"}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		row := []string{
			r.name,
			strconv.FormatInt(r.res.Ops, 10),
			fmt.Sprintf("%.0f", math.Max(r.res.OpsPerSecond(), 0)),
			fmt.Sprintf("%.0f", r.res.Latency.Mean),
			fmt.Sprintf("%.0f", r.res.Latency.Max),
			fmt.Sprintf("%.0f", r.res.Latency.StdDeviation),
			strconv.Itoa(threads),
			strconv.Itoa(replicas),
			strconv.FormatUint(logCapacity, 10),
			strconv.FormatUint(uint64(batchSize), 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return nil
}

// wrapString wraps help text at a fixed column width, matching this
// project's other CLI flag descriptions.
func wrapString(text string) string {
	const width = 50
	var lines []string
	var line strings.Builder
	w := 0
	for _, word := range strings.Fields(text) {
		ww := len(word)
		if w > 0 && w+1+ww > width {
			lines = append(lines, line.String())
			line.Reset()
			w = 0
		}
		if w > 0 {
			line.WriteString(" ")
			w++
		}
		line.WriteString(word)
		w += ww
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}
