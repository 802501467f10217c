package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/identity/memory"
	"github.com/MrEthical07/goRecover/jwt"
	"github.com/MrEthical07/goRecover/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var codePattern = regexp.MustCompile(`code is (\d+)\.`)

// captureSender hands every queued mail to the harness.
type captureSender struct {
	ch chan string
}

func (s *captureSender) Send(_ context.Context, _, _, body string) error {
	s.ch <- body
	return nil
}

func (s *captureSender) nextCode(timeout time.Duration) (string, error) {
	select {
	case body := <-s.ch:
		m := codePattern.FindStringSubmatch(body)
		if m == nil {
			return "", fmt.Errorf("no code in mail body %q", body)
		}
		return m[1], nil
	case <-time.After(timeout):
		return "", errors.New("timed out waiting for mail")
	}
}

func main() {
	var (
		rounds           = flag.Int("rounds", 50, "accounts to run through the flows")
		concurrency      = flag.Int("concurrency", 64, "concurrent verify-email calls per code")
		resetConcurrency = flag.Int("reset-concurrency", 8, "concurrent complete-reset calls per payload")
		redisAddr        = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *rounds <= 0 || *concurrency <= 0 || *resetConcurrency <= 0 {
		fmt.Fprintln(os.Stderr, "rounds, concurrency, and reset-concurrency must be > 0")
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
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, sender, err := buildEngine(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	verify := newCollector()
	reset := newCollector()
	violations := 0

	start := time.Now()
	for i := 0; i < *rounds; i++ {
		email := fmt.Sprintf("load-%d-%d@example.com", start.UnixNano(), i)
		if err := engine.Signup(ctx, email, "loadtest-password", fmt.Sprintf("load%d_%d", start.UnixNano(), i)); err != nil {
			fmt.Fprintf(os.Stderr, "signup failed: %v\n", err)
			os.Exit(1)
		}
		code, err := sender.nextCode(5 * time.Second)
		if err != nil {
			fmt.Fprintf(os.Stderr, "signup mail: %v\n", err)
			os.Exit(1)
		}
		if wins := race(*concurrency, verify, func(ctx context.Context) error {
			return engine.VerifyEmail(ctx, email, code)
		}); wins != 1 {
			violations++
			fmt.Fprintf(os.Stderr, "round %d: verify-email succeeded %d times\n", i, wins)
		}

		if err := engine.InitiateReset(ctx, email); err != nil {
			fmt.Fprintf(os.Stderr, "initiate reset failed: %v\n", err)
			os.Exit(1)
		}
		code, err = sender.nextCode(5 * time.Second)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reset mail: %v\n", err)
			os.Exit(1)
		}
		payload, err := engine.VerifyCodeForReset(goRecover.WithClientIP(ctx, "10.255.0.1"), email, code)
		if err != nil {
			fmt.Fprintf(os.Stderr, "verify reset code failed: %v\n", err)
			os.Exit(1)
		}
		if wins := race(*resetConcurrency, reset, func(ctx context.Context) error {
			return engine.CompleteReset(ctx, payload, "loadtest-password-2")
		}); wins != 1 {
			violations++
			fmt.Fprintf(os.Stderr, "round %d: complete-reset succeeded %d times\n", i, wins)
		}
	}

	fmt.Println("---- results ----")
	printStats("verify-email", verify.stats(time.Since(start)))
	printStats("complete-reset", reset.stats(time.Since(start)))
	fmt.Printf("exactly-once violations: %d\n", violations)
	if violations > 0 {
		os.Exit(1)
	}
}

func buildEngine(client redis.UniversalClient) (*goRecover.Engine, *captureSender, error) {
	hasher, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		return nil, nil, err
	}
	sessions, err := jwt.NewManager(jwt.Config{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("recovery-loadtest-session-secret!"),
	})
	if err != nil {
		return nil, nil, err
	}
	provider, err := memory.New(memory.DefaultConfig(), hasher, sessions)
	if err != nil {
		return nil, nil, err
	}

	sender := &captureSender{ch: make(chan string, 16)}
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}

	engine, err := goRecover.New().
		WithCapabilityKey(key).
		WithRedis(client).
		WithIdentityProvider(provider).
		WithMailSender(sender).
		WithLogger(zap.NewNop()).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return engine, sender, nil
}

var ipCounter atomic.Uint32

// race runs fn from n goroutines released together, each with its own
// client IP so the throttle never decides the outcome. It returns the
// number of successful calls.
func race(n int, c *collector, fn func(ctx context.Context) error) int {
	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		start = make(chan struct{})
	)
	for w := 0; w < n; w++ {
		ip := ipCounter.Add(1)
		ctx := goRecover.WithClientIP(context.Background(),
			fmt.Sprintf("10.%d.%d.%d", byte(ip>>16), byte(ip>>8), byte(ip)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			t0 := time.Now()
			err := fn(ctx)
			c.add(time.Since(t0), err)
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	return int(wins.Load())
}

type collector struct {
	mu        sync.Mutex
	latencies []time.Duration
	failures  map[goRecover.ErrorKind]int
}

func newCollector() *collector {
	return &collector{failures: map[goRecover.ErrorKind]int{}}
}

func (c *collector) add(d time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencies = append(c.latencies, d)
	if err != nil {
		c.failures[goRecover.KindOf(err)]++
	}
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures map[goRecover.ErrorKind]int
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func (c *collector) stats(total time.Duration) phaseStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	samples := append([]time.Duration(nil), c.latencies...)
	if len(samples) == 0 {
		return phaseStats{total: total, failures: c.failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: c.failures,
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
	kinds := make([]string, 0, len(s.failures))
	for k := range s.failures {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("  %s: %d\n", k, s.failures[goRecover.ErrorKind(k)])
	}
}
