// Command loadgen drives a churn-heavy workload directly against a
// store.Store, exercising overwrite and delete traffic so segment rollover
// and merge have something real to chew on.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/kvforge/bitcask/store"
)

const (
	concurrency = 6

	totalKeys   = 100
	totalValues = 100

	keysPerCycleWrite  = 20
	keysPerCycleDelete = 10
	cyclesPerWorker    = 5000

	sleepBetweenCycles = 10 * time.Millisecond

	progressEvery = 500
)

func main() {
	dir := flag.String("dir", "./loadgen-data", "store directory")
	threshold := flag.Int64("segment-threshold", store.MinSegmentThresholdBytes, "active segment rollover threshold in bytes")
	flag.Parse()

	start := time.Now()
	fmt.Println("Starting bitcask churn-heavy load generator")

	s, err := store.Open(*dir, store.WithSegmentThresholdBytes(*threshold))
	if err != nil {
		fmt.Println("open store:", err)
		return
	}
	defer s.Close()

	keys := makeKeys(totalKeys)
	values := makeValues(totalValues)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runWorker(id, s, keys, values)
		}(i)
	}
	wg.Wait()

	st, err := s.Stats()
	if err == nil {
		fmt.Printf("final stats: keys=%d segments=%d live_bytes=%d total_bytes=%d\n",
			st.KeyCount, st.SegmentCount, st.LiveBytes, st.TotalBytes)
	}

	fmt.Printf("load finished in %v\n", time.Since(start))
}

func runWorker(id int, s *store.Store, keys []string, values []string) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))

	for cycle := 1; cycle <= cyclesPerWorker; cycle++ {
		for i := 0; i < keysPerCycleWrite; i++ {
			key := keys[rng.Intn(len(keys))]
			val := values[rng.Intn(len(values))]

			if err := s.Put(key, []byte(val)); err != nil {
				fmt.Printf("[worker %d] put error: %v\n", id, err)
				return
			}
		}

		for i := 0; i < keysPerCycleDelete; i++ {
			key := keys[rng.Intn(len(keys))]

			if err := s.Delete(key); err != nil {
				fmt.Printf("[worker %d] delete error: %v\n", id, err)
				return
			}
		}

		for i := 0; i < keysPerCycleWrite/2; i++ {
			key := keys[rng.Intn(len(keys))]
			val := values[rng.Intn(len(values))]

			if err := s.Put(key, []byte(val)); err != nil {
				fmt.Printf("[worker %d] rewrite error: %v\n", id, err)
				return
			}
		}

		if cycle%progressEvery == 0 {
			fmt.Printf("[worker %d] completed %d cycles\n", id, cycle)
		}

		if sleepBetweenCycles > 0 {
			time.Sleep(sleepBetweenCycles)
		}
	}
}

func makeKeys(n int) []string {
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = fmt.Sprintf("key-%03d", i)
	}
	return keys
}

func makeValues(n int) []string {
	values := make([]string, n)
	for i := 0; i < n; i++ {
		values[i] = fmt.Sprintf("value-%03d-xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", i)
	}
	return values
}
