package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	uuid "github.com/hashicorp/go-uuid"
	"github.com/studycompanion/studycache/v1/cache"
)

var (
	concurrency = flag.Int("c", 50, "Concurrency")
	requests    = flag.Int("n", 100000, "Requests")
	dataSize    = flag.Int("d", 256, "Payload size")
	ttl         = flag.Duration("ttl", 5*time.Minute, "Entry TTL")
	target      = flag.String("target", "all", "Target: memory, ristretto")
)

func main() {
	flag.Parse()

	payload := strings.Repeat("x", *dataSize)

	targets := strings.Split(*target, ",")
	if *target == "all" {
		targets = []string{"memory", "ristretto"}
	}

	fmt.Printf("| %-10s | %-10s | %-12s | %-12s |\n", "Backend", "Ops/sec", "Avg Latency", "P99 Latency")
	fmt.Println("|:---|:---|:---|:---|")

	for _, tgt := range targets {
		runBenchmark(strings.TrimSpace(tgt), payload)
	}
}

func newTarget(name string) cache.Cache[string] {
	switch name {
	case "memory":
		return cache.NewInMemory[string]()
	case "ristretto":
		return cache.NewRistretto[string](cache.WithRistretto(nil))
	default:
		log.Fatalf("unknown target %q", name)
		return nil
	}
}

func runBenchmark(name, payload string) {
	ctx := context.Background()
	c := newTarget(name)

	keys := make([]string, *requests)
	for i := range keys {
		id, err := uuid.GenerateUUID()
		if err != nil {
			log.Fatal(err)
		}
		keys[i] = "bench:" + id
	}

	perWorker := *requests / *concurrency
	latencies := make([][]time.Duration, *concurrency)

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			lats := make([]time.Duration, 0, perWorker*2)
			for i := w * perWorker; i < (w+1)*perWorker; i++ {
				t0 := time.Now()
				_ = c.Set(ctx, keys[i], payload, *ttl)
				lats = append(lats, time.Since(t0))
				t0 = time.Now()
				_, _, _ = c.Get(ctx, keys[i])
				lats = append(lats, time.Since(t0))
			}
			latencies[w] = lats
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	var all []time.Duration
	for _, lats := range latencies {
		all = append(all, lats...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	var total time.Duration
	for _, l := range all {
		total += l
	}
	ops := float64(len(all)) / elapsed.Seconds()
	avg := total / time.Duration(len(all))
	p99 := all[len(all)*99/100]

	fmt.Printf("| %-10s | %-10.0f | %-12s | %-12s |\n", name, ops, avg, p99)
}
