package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/route"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/signedlink"
	"github.com/MrEthical07/goGuard/subscription"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

const loadSecret = "loadtest-secret-0123456789abcdef"

func main() {
	var (
		links       = pflag.Int("links", 10000, "number of signed links to mint")
		revoked     = pflag.Float64("revoked", 0.1, "fraction of links to revoke")
		concurrency = pflag.Int("concurrency", 256, "number of concurrent workers")
		ops         = pflag.Int("ops", 200000, "evaluations per phase (link + session)")
		redisAddr   = pflag.String("redis-addr", "", "redis address; if empty, GOGUARD_REDIS_ADDR env or miniredis is used")
	)
	pflag.Parse()

	if *links <= 0 || *concurrency <= 0 || *ops <= 0 || *revoked < 0 || *revoked > 1 {
		fmt.Fprintln(os.Stderr, "links, concurrency, and ops must be > 0; revoked must be in [0,1]")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("GOGUARD_REDIS_ADDR")
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

	cfg := goGuard.DefaultConfig()
	cfg.Link.Secrets = []string{loadSecret}
	cfg.Link.MaxAttempts = 0
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := goGuard.New().
		WithConfig(cfg).
		WithRedis(client).
		WithIdentity(session.IdentityFunc(func(context.Context) (session.Principal, error) {
			return session.Principal{Role: "admin", UserID: "u1"}, nil
		})).
		WithSubscriptions(subscription.FetcherFunc(func(context.Context, string) (subscription.Record, error) {
			exp := time.Now().Add(24 * time.Hour)
			return subscription.Record{Active: true, ExpiresAt: &exp}, nil
		})).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	urls, err := seedLinks(ctx, cfg.Link, client, *links, *revoked)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	linkStats := runPhase(*ops, *concurrency, func(r *rand.Rand) (bool, error) {
		ev, err := engine.Evaluate(ctx, urls[r.Intn(len(urls))])
		return ev.Decision.Kind == goGuard.Allow, err
	})
	sessionStats := runPhase(*ops, *concurrency, func(*rand.Rand) (bool, error) {
		ev, err := engine.Evaluate(ctx, route.StaffHome)
		return ev.Decision.Kind == goGuard.Allow, err
	})

	fmt.Println("---- results ----")
	printStats("link", linkStats)
	printStats("session", sessionStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("granted=%d rejected=%d allow=%d redirect=%d\n",
		snap.Counters[goGuard.MetricLinkGranted],
		snap.Counters[goGuard.MetricLinkRejected],
		snap.Counters[goGuard.MetricDecisionAllow],
		snap.Counters[goGuard.MetricDecisionRedirect],
	)
}

func seedLinks(ctx context.Context, cfg goGuard.LinkConfig, client redis.UniversalClient, n int, revokedFrac float64) ([]string, error) {
	signer, err := goGuard.NewLinkSigner(cfg)
	if err != nil {
		return nil, err
	}
	revs := signedlink.NewRedisRevocations(client, cfg.RevocationPrefix)

	fmt.Printf("minting %d links...\n", n)
	start := time.Now()
	urls := make([]string, n)
	cut := int(float64(n) * revokedFrac)
	for i := 0; i < n; i++ {
		id := "rec-" + strconv.Itoa(i)
		u, err := signer.Link(route.SignedRecord, id)
		if err != nil {
			return nil, err
		}
		urls[i] = u
		if i < cut {
			if err := revs.Revoke(ctx, id, 0); err != nil {
				return nil, err
			}
		}
	}
	fmt.Printf("minted in %s (%d revoked)\n", time.Since(start).Round(time.Millisecond), cut)
	return urls, nil
}

// runPhase runs ops evaluations across concurrency workers. A non-Allow
// decision is counted as a denial, an error as a failure.
func runPhase(ops, concurrency int, eval func(*rand.Rand) (bool, error)) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		denials   int64
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
				allowed, err := eval(r)
				d := time.Since(t0)
				switch {
				case err != nil:
					atomic.AddInt64(&failures, 1)
				case !allowed:
					atomic.AddInt64(&denials, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	s := computeStats(time.Since(start), latencies, failures)
	s.denials = denials
	return s
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	denials  int64
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
	fmt.Printf("%s: ops=%d denials=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.denials,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
