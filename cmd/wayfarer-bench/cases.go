package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"wayfarer/internal/types"
)

type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
	StatusSkip Status = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Status  Status
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

// chatReply is the subset of the chat response the cases inspect.
type chatReply struct {
	SessionID string   `json:"session_id"`
	Reply     string   `json:"reply"`
	Phase     string   `json:"phase"`
	Intent    string   `json:"intent"`
	Missing   []string `json:"missing_fields"`
	Degraded  bool     `json:"degraded"`
	Version   int64    `json:"version"`
}

func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg, httpc: &http.Client{Timeout: 30 * time.Second}}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer r.redis.Close()
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		start := time.Now()
		res := tc.Run(ctx, r)
		if res.Latency == 0 {
			res.Latency = time.Since(start)
		}
		results = append(results, res)
		fmt.Printf("%-5s %s (%s)", res.Status, tc.Name, res.Latency.Round(time.Millisecond))
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: pingPostgres},
		{Name: "Env: Redis connect", Run: pingRedis},
		{Name: "Migration: tables exist", Run: tablesExist},
		{Name: "API: health", Run: health},
		{Name: "Conversation: Boston to Chicago next Monday", Run: bostonToChicago},
		{Name: "Guard: empty message rejected", Run: emptyRejected},
		{Name: "Concurrency: parallel turns on one session", Run: parallelTurns},
		{Name: "Perf: first-turn throughput", Run: perfFirstTurn},
	}
}

func pingPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: StatusSkip, Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass}
}

func pingRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: StatusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass}
}

var createTableRe = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func tablesExist(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: StatusSkip, Note: "db not configured"}
	}
	tables, err := migrationTables(r.cfg.Migrations)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+t).Scan(&exists)
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: StatusFail, Note: "missing table " + t}
		}
	}
	return Result{Status: StatusPass, Note: fmt.Sprintf("%d tables", len(tables))}
}

func migrationTables(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	var tables []string
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		for _, m := range createTableRe.FindAllStringSubmatch(string(b), -1) {
			tables = append(tables, m[1])
		}
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables declared in %s", dir)
	}
	return tables, nil
}

func health(ctx context.Context, r *Runner) Result {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/health", nil)
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Status: StatusFail, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
	}
	return Result{Status: StatusPass}
}

func bostonToChicago(ctx context.Context, r *Runner) Result {
	id := string(types.NewID())
	first, status, err := r.chat(ctx, id, "Find flights from Boston to Chicago")
	if err != nil || status != http.StatusOK {
		return Result{Status: StatusFail, Note: fmt.Sprintf("turn 1: status=%d err=%v", status, err)}
	}
	if first.Phase != "collecting_parameters" || len(first.Missing) != 1 || first.Missing[0] != "departure_date" {
		return Result{Status: StatusFail, Note: fmt.Sprintf("turn 1: phase=%s missing=%v", first.Phase, first.Missing)}
	}
	second, status, err := r.chat(ctx, id, "next Monday")
	if err != nil || status != http.StatusOK {
		return Result{Status: StatusFail, Note: fmt.Sprintf("turn 2: status=%d err=%v", status, err)}
	}
	if second.Phase != "responding" || second.Version != first.Version+1 {
		return Result{Status: StatusFail, Note: fmt.Sprintf("turn 2: phase=%s version=%d", second.Phase, second.Version)}
	}
	note := ""
	if second.Degraded {
		note = "search degraded"
	}
	return Result{Status: StatusPass, Note: note}
}

func emptyRejected(ctx context.Context, r *Runner) Result {
	_, status, err := r.chat(ctx, string(types.NewID()), "   ")
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if status != http.StatusBadRequest {
		return Result{Status: StatusFail, Note: fmt.Sprintf("status=%d", status)}
	}
	return Result{Status: StatusPass}
}

// parallelTurns sends turns to one session at once. Every accepted turn
// must land as its own version.
func parallelTurns(ctx context.Context, r *Runner) Result {
	id := string(types.NewID())
	var ok, throttled, failed atomic.Int64
	var maxVersion atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reply, status, err := r.chat(ctx, id, fmt.Sprintf("hotel in Lisbon for %d guests", i%4+1))
			switch {
			case err != nil:
				failed.Add(1)
			case status == http.StatusTooManyRequests:
				throttled.Add(1)
			case status == http.StatusOK && !reply.Degraded:
				ok.Add(1)
				for {
					cur := maxVersion.Load()
					if reply.Version <= cur || maxVersion.CompareAndSwap(cur, reply.Version) {
						break
					}
				}
			default:
				failed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	note := fmt.Sprintf("ok=%d throttled=%d failed=%d version=%d", ok.Load(), throttled.Load(), failed.Load(), maxVersion.Load())
	if ok.Load() == 0 || maxVersion.Load() != ok.Load() {
		return Result{Status: StatusFail, Note: note}
	}
	return Result{Status: StatusPass, Note: note}
}

func perfFirstTurn(ctx context.Context, r *Runner) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				_, status, err := r.chat(ctx, string(types.NewID()), "Find flights from Boston to Chicago")
				if err != nil || status != http.StatusOK {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: StatusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Latency: r.cfg.Duration, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func (r *Runner) chat(ctx context.Context, sessionID, message string) (*chatReply, int, error) {
	body, _ := json.Marshal(map[string]string{"session_id": sessionID, "message": message})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}
	var out chatReply
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, resp.StatusCode, err
	}
	return &out, resp.StatusCode, nil
}
