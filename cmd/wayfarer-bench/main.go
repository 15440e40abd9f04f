// README: Benchmark runner; scripted conversations, concurrency and throughput checks against a running API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Config is interpreted by github.com/jessevdk/go-flags.
type Config struct {
	BaseURL     string        `long:"base-url" env:"WAYFARER_BENCH_BASE_URL" default:"http://localhost:8080" description:"API base URL"`
	DSN         string        `long:"dsn" env:"WAYFARER_DB_DSN" description:"Postgres DSN; empty skips DB checks"`
	RedisAddr   string        `long:"redis" env:"WAYFARER_REDIS_ADDR" description:"Redis address; empty skips Redis checks"`
	Migrations  string        `long:"migrations" default:"migrations" description:"directory of migration SQL files"`
	Strict      bool          `long:"strict" description:"fail on SKIP results"`
	Timeout     time.Duration `long:"timeout" default:"60s" description:"total timeout"`
	Concurrency int           `long:"concurrency" default:"20" description:"workers for concurrency and perf cases"`
	Duration    time.Duration `long:"duration" default:"10s" description:"duration of perf cases"`
}

func main() {
	var cfg Config
	if _, err := flags.Parse(&cfg); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	results := NewRunner(cfg).RunAll(ctx)

	fmt.Println("\n== Summary ==")
	counts := map[Status]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", counts[StatusPass], counts[StatusFail], counts[StatusSkip])

	if counts[StatusFail] > 0 || (cfg.Strict && counts[StatusSkip] > 0) {
		os.Exit(1)
	}
}
