// Command trustload measures session throughput of the engine against a
// Redis session store: it seeds sessions through CreateSession, then runs a
// ValidateSession phase and an Authorize phase with concurrent workers and
// prints latency percentiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goTrust "github.com/MrEthical07/goTrust"
	"github.com/MrEthical07/goTrust/internal/logging"
	"github.com/MrEthical07/goTrust/store"
	"github.com/MrEthical07/goTrust/store/memory"
)

var loadSignals = goTrust.Signals{UserAgent: "trustload/1.0", AcceptLanguage: "en"}

func main() {
	var (
		sessions    = flag.Int("sessions", 10000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (validate + authorize)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "gtload:", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := goTrust.DefaultConfig()
	cfg.Session.RedisPrefix = *prefix
	cfg.Audit.FailClosed = false
	engine, err := goTrust.New().
		WithConfig(cfg).
		WithLogger(logging.Discard()).
		WithAccountStore(memory.NewAccounts()).
		WithAuditSink(goTrust.NoOpSink{}).
		WithRedis(client).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	tokens, err := seed(ctx, engine, *sessions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	validateStats := runPhase(tokens, *ops, *concurrency, func(token string) error {
		_, err := engine.ValidateSession(ctx, token, loadSignals)
		return err
	})
	authorizeStats := runPhase(tokens, *ops, *concurrency, func(token string) error {
		_, err := engine.Authorize(ctx, token, loadSignals, "issue.write", nil)
		return err
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("authorize", authorizeStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine: validated=%d hijack=%d expired=%d\n",
		snap.Counters[goTrust.MetricSessionValidated],
		snap.Counters[goTrust.MetricSessionHijack],
		snap.Counters[goTrust.MetricSessionExpired],
	)
}

func seed(ctx context.Context, engine *goTrust.Engine, n int) ([]string, error) {
	fmt.Printf("seeding %d sessions...\n", n)
	start := time.Now()
	tokens := make([]string, n)
	for i := range tokens {
		acct := store.Account{ID: fmt.Sprintf("load-%d", i), Handle: fmt.Sprintf("load%d", i), Role: "employee"}
		token, err := engine.CreateSession(ctx, &acct, loadSignals)
		if err != nil {
			return nil, err
		}
		tokens[i] = token
	}
	fmt.Printf("seeded in %s\n", time.Since(start).Round(time.Millisecond))
	return tokens, nil
}

func runPhase(tokens []string, ops, concurrency int, op func(token string) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(tokens[r.Intn(len(tokens))])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
