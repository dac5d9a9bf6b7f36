package rankctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/internal/ranking"
	"github.com/okian/pcarank/pkg/logger"
)

// ErrLoadTest is returned when a load test saw failed requests or
// inconsistent rankings.
var ErrLoadTest = errors.New("load test failed")

// LoadTestConfig describes one run against a live server.
type LoadTestConfig struct {
	BaseURL  string
	Requests int
	Workers  int
	Timeout  time.Duration
	Level    model.AreaLevel
	Area     string
	Limit    int
	Events   []string
}

// LoadTestStats is what a run observed.
type LoadTestStats struct {
	Requests     int
	Succeeded    int
	Failed       int
	Inconsistent int
	Duration     time.Duration
	MaxLatency   time.Duration
	Statuses     map[int]int
}

type rankingsBody struct {
	Results map[string][]model.RankingRow `json:"results"`
}

type rankingCheck struct {
	query string
	event string
	rt    model.RankType
}

func (c *CLI) loadTestCommand() *cobra.Command {
	lc := LoadTestConfig{}
	var level string
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Hammer a running server with concurrent ranking reads",
		Long: `Send concurrent GET /rankings requests to a running server and verify
that every response is well ordered and that repeated reads of the same
ranking agree with each other.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lvl, err := model.ParseAreaLevel(level)
			if err != nil {
				return err
			}
			lc.Level = lvl
			if lc.Limit == 0 {
				lc.Limit = c.cfg.DefaultLimit
			}
			stats, err := RunLoadTest(cmd.Context(), lc, c.log.Named("loadtest"))
			if werr := writeLoadTestStats(c.out, stats); werr != nil && err == nil {
				err = werr
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&lc.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	flags.IntVar(&lc.Requests, "requests", 1000, "number of ranking requests")
	flags.IntVar(&lc.Workers, "workers", 16, "concurrent clients")
	flags.DurationVar(&lc.Timeout, "timeout", 10*time.Second, "per-request timeout")
	flags.StringVar(&level, "level", "national", "national, regional or local")
	flags.StringVar(&lc.Area, "area", "", "area below national level")
	flags.IntVar(&lc.Limit, "limit", 0, "rows per ranking (default from config)")
	flags.StringSliceVar(&lc.Events, "event", nil, "event ids to cycle through (default all)")
	return cmd
}

// RunLoadTest checks the server is healthy, then spreads cfg.Requests
// ranking reads over cfg.Workers clients and verifies the answers.
func RunLoadTest(ctx context.Context, cfg LoadTestConfig, log logger.Logger) (LoadTestStats, error) {
	stats := LoadTestStats{Statuses: map[int]int{}}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if len(cfg.Events) == 0 {
		cfg.Events = ranking.EventIDs()
	}
	client := &http.Client{Timeout: cfg.Timeout}
	base := strings.TrimRight(cfg.BaseURL, "/")

	log.Info(ctx, "starting ranking load test",
		logger.String("baseURL", base),
		logger.Int("requests", cfg.Requests),
		logger.Int("workers", cfg.Workers),
		logger.String("level", string(cfg.Level)))

	if err := checkHealth(ctx, client, base); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	checks := make([]rankingCheck, 0, len(cfg.Events)*len(model.RankTypes))
	for _, ev := range cfg.Events {
		for _, rt := range model.RankTypes {
			v := url.Values{}
			v.Set("events", ev)
			v.Set("type", string(rt))
			v.Set("limit", strconv.Itoa(cfg.Limit))
			if cfg.Area != "" {
				v.Set("area", cfg.Area)
			}
			checks = append(checks, rankingCheck{
				query: base + "/rankings/" + string(cfg.Level) + "?" + v.Encode(),
				event: ev,
				rt:    rt,
			})
		}
	}

	var (
		succeeded, failed, maxLatency atomic.Int64
		mu                            sync.Mutex
		statuses                      = map[int]int{}
		// fingerprints holds every distinct answer seen per query.
		fingerprints = make([]map[string]struct{}, len(checks))
		disordered   atomic.Int64
	)
	for i := range fingerprints {
		fingerprints[i] = map[string]struct{}{}
	}

	start := time.Now()
	work := make(chan int, cfg.Workers*2)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				p := checks[i%len(checks)]
				t0 := time.Now()
				status, rows, err := fetchRanking(ctx, client, p)
				for d := time.Since(t0).Nanoseconds(); ; {
					cur := maxLatency.Load()
					if d <= cur || maxLatency.CompareAndSwap(cur, d) {
						break
					}
				}

				mu.Lock()
				statuses[status]++
				mu.Unlock()
				if err != nil {
					failed.Add(1)
					log.Debug(ctx, "ranking request failed", logger.String("url", p.query), logger.Error(err))
					continue
				}
				succeeded.Add(1)
				if !wellOrdered(rows, cfg.Limit) {
					disordered.Add(1)
				}
				fp := fingerprint(rows)
				mu.Lock()
				fingerprints[i%len(checks)][fp] = struct{}{}
				mu.Unlock()
			}
		}()
	}

	go func() {
		defer close(work)
		for i := 0; i < cfg.Requests; i++ {
			select {
			case <-ctx.Done():
				return
			case work <- i:
			}
		}
	}()
	wg.Wait()

	stats.Requests = int(succeeded.Load() + failed.Load())
	stats.Succeeded = int(succeeded.Load())
	stats.Failed = int(failed.Load())
	stats.Duration = time.Since(start)
	stats.MaxLatency = time.Duration(maxLatency.Load())
	stats.Statuses = statuses
	stats.Inconsistent = int(disordered.Load())
	for _, seen := range fingerprints {
		if len(seen) > 1 {
			stats.Inconsistent++
		}
	}

	log.Info(ctx, "load test finished",
		logger.Int("succeeded", stats.Succeeded),
		logger.Int("failed", stats.Failed),
		logger.Int("inconsistent", stats.Inconsistent),
		logger.Duration("duration", stats.Duration))

	if stats.Failed > 0 || stats.Inconsistent > 0 {
		return stats, fmt.Errorf("%w: %d failed, %d inconsistent", ErrLoadTest, stats.Failed, stats.Inconsistent)
	}
	return stats, nil
}

func checkHealth(ctx context.Context, client *http.Client, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func fetchRanking(ctx context.Context, client *http.Client, p rankingCheck) (int, []model.RankingRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.query, http.NoBody)
	if err != nil {
		return 0, nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rb rankingsBody
	if err := json.Unmarshal(body, &rb); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.StatusCode, rb.Results[string(p.rt)+"_"+p.event], nil
}

// wellOrdered reports whether ranks start at 1, never decrease and the
// page respects the limit.
func wellOrdered(rows []model.RankingRow, limit int) bool {
	if limit > 0 && len(rows) > limit {
		return false
	}
	for i, r := range rows {
		if i == 0 && r.Rank != 1 {
			return false
		}
		if i > 0 && r.Rank < rows[i-1].Rank {
			return false
		}
	}
	return true
}

func fingerprint(rows []model.RankingRow) string {
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(strconv.Itoa(r.Rank))
		b.WriteByte(':')
		b.WriteString(r.PersonID)
		b.WriteByte('=')
		b.WriteString(r.Value)
		b.WriteByte(';')
	}
	return b.String()
}

func writeLoadTestStats(w io.Writer, stats LoadTestStats) error {
	var rps float64
	if stats.Duration > 0 {
		rps = float64(stats.Requests) / stats.Duration.Seconds()
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Metric", "Value"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	data := [][]string{
		{"requests", strconv.Itoa(stats.Requests)},
		{"succeeded", strconv.Itoa(stats.Succeeded)},
		{"failed", strconv.Itoa(stats.Failed)},
		{"inconsistent", strconv.Itoa(stats.Inconsistent)},
		{"duration", stats.Duration.Round(time.Millisecond).String()},
		{"max latency", stats.MaxLatency.Round(time.Microsecond).String()},
		{"requests/s", strconv.FormatFloat(rps, 'f', 1, 64)},
	}
	codes := make([]int, 0, len(stats.Statuses))
	for code := range stats.Statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		name := "status " + strconv.Itoa(code)
		if code == 0 {
			name = "no response"
		}
		data = append(data, []string{name, strconv.Itoa(stats.Statuses[code])})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	if stats.Failed > 0 || stats.Inconsistent > 0 {
		return printf(w, "%s\n", failColor.Sprint("FAIL"))
	}
	return printf(w, "%s\n", okColor.Sprint("PASS"))
}
