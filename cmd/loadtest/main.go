// Loadtest прогоняет сценарии купли-продажи через HTTP API сервиса и
// печатает JSON-отчёт: латентность по методам, коды ответов, RPS.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPrice = 42.0

type loadMode string

const (
	modePublish        loadMode = "publish"
	modePublishRequest loadMode = "publish-request"
	modeFullDeal       loadMode = "full-deal"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	price       float64
	category    string
	userTag     string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{methods: make(map[string]*methodStats)}
}

func (c *collector) record(method string, latency time.Duration, code string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, found := c.methods[method]
	if !found {
		stats = &methodStats{codes: make(map[string]int64)}
		c.methods[method] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	scenarioStats := c.methods["scenario"]
	if scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codesCopy[code] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func ratio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func buildLatencySummary(latencies []float64) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

// percentile ожидает отсортированный по возрастанию срез.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(math.Ceil(p/100.0*float64(len(sorted)))) - 1
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string

	flag.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "HTTP API base URL")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modePublish), "load mode: publish | publish-request | full-deal")
	flag.Float64Var(&cfg.price, "price", defaultPrice, "item price")
	flag.StringVar(&cfg.category, "category", "electronics", "item category")
	flag.StringVar(&cfg.userTag, "user-tag", "load", "user id prefix for dev tokens")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	return cfg, validateConfig(cfg)
}

func validateConfig(cfg config) error {
	if strings.TrimSpace(cfg.baseURL) == "" {
		return errors.New("base-url is required")
	}
	if cfg.duration < 0 {
		return errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	if cfg.price <= 0 {
		return errors.New("price must be > 0")
	}
	if strings.TrimSpace(cfg.category) == "" {
		return errors.New("category is required")
	}
	if strings.TrimSpace(cfg.userTag) == "" {
		return errors.New("user-tag is required")
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modePublish:
		return modePublish, nil
	case modePublishRequest:
		return modePublishRequest, nil
	case modeFullDeal:
		return modeFullDeal, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

// runner выполняет сценарии против HTTP API от имени dev-пользователей.
type runner struct {
	cfg    config
	client *http.Client
	col    *collector
	runID  string
}

type itemPayload struct {
	ID string `json:"id"`
}

type buyRequestPayload struct {
	ID string `json:"id"`
}

type acceptPayload struct {
	Transaction struct {
		ID string `json:"id"`
	} `json:"transaction"`
}

// call выполняет один HTTP-вызов и записывает его в отчёт. Успехом
// считается любой код 2xx.
func (r *runner) call(ctx context.Context, method, httpMethod, path, userID string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", method, err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, httpMethod, r.cfg.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer dev:"+userID)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		r.col.record(method, latency, "network_error", false)
		return fmt.Errorf("%s failed: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	code := strconv.Itoa(resp.StatusCode)
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	r.col.record(method, latency, code, ok)
	if !ok {
		return fmt.Errorf("%s returned status %s", method, code)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", method, err)
		}
	}
	return nil
}

func (r *runner) runScenario(ctx context.Context, iteration int) error {
	sellerID := fmt.Sprintf("%s-seller-%s-%d", r.cfg.userTag, r.runID, iteration)
	buyerID := fmt.Sprintf("%s-buyer-%s-%d", r.cfg.userTag, r.runID, iteration)

	var created itemPayload
	err := r.call(ctx, "items.create", http.MethodPost, "/api/items", sellerID, map[string]any{
		"title":       fmt.Sprintf("load item %d", iteration),
		"description": "generated by loadtest",
		"price":       r.cfg.price,
		"category":    r.cfg.category,
		"condition":   "good",
	}, &created)
	if err != nil {
		return err
	}
	if r.cfg.mode == modePublish {
		return nil
	}

	var request buyRequestPayload
	err = r.call(ctx, "buy_requests.create", http.MethodPost, "/api/buy-requests", buyerID, map[string]any{
		"item_id": created.ID,
	}, &request)
	if err != nil {
		return err
	}
	if r.cfg.mode == modePublishRequest {
		return nil
	}

	var accepted acceptPayload
	err = r.call(ctx, "buy_requests.accept", http.MethodPost, "/api/buy-requests/"+request.ID+"/accept", sellerID, nil, &accepted)
	if err != nil {
		return err
	}

	txPath := "/api/transactions/" + accepted.Transaction.ID
	if err := r.call(ctx, "transactions.confirm", http.MethodPatch, txPath, buyerID, map[string]any{"buyer_confirmed": true}, nil); err != nil {
		return err
	}
	return r.call(ctx, "transactions.confirm", http.MethodPatch, txPath, sellerID, map[string]any{"seller_confirmed": true}, nil)
}

// execute запускает воркеров и собирает итоговый отчёт.
func execute(ctx context.Context, cfg config, client *http.Client) report {
	startedAt := time.Now()
	r := &runner{
		cfg:    cfg,
		client: client,
		col:    newCollector(),
		runID:  fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid()),
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if cfg.duration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
	}

	total := int64(cfg.total)
	unbounded := cfg.duration > 0 && !cfg.totalSet

	var iteration int64
	var wg sync.WaitGroup
	for worker := 0; worker < cfg.concurrency; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if runCtx.Err() != nil {
					return
				}
				current := atomic.AddInt64(&iteration, 1)
				if !unbounded && current > total {
					return
				}

				scenarioStart := time.Now()
				err := r.runScenario(runCtx, int(current))
				if runCtx.Err() != nil && err != nil {
					// Оборванный дедлайном сценарий не считаем провалом.
					return
				}
				code := "ok"
				if err != nil {
					code = "failed"
				}
				r.col.record("scenario", time.Since(scenarioStart), code, err == nil)
			}
		}()
	}
	wg.Wait()

	return r.col.buildReport(startedAt, time.Since(startedAt))
}

func writeReport(result report, outputPath string) error {
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	fmt.Println(string(encoded))

	if strings.TrimSpace(outputPath) == "" {
		return nil
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}
	return nil
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: cfg.timeout}
	result := execute(context.Background(), cfg, client)

	if err := writeReport(result, cfg.outputPath); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "report failed: %v\n", err)
		os.Exit(1)
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}
