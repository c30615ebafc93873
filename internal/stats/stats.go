package stats

import (
	"log/slog"
	"sort"
	"sync"
)

// Snapshot is a point-in-time copy of the cumulative counters.
type Snapshot struct {
	FetchSuccess  map[string]uint64 `json:"exchange_success"`
	FetchFailure  map[string]uint64 `json:"exchange_errors"`
	Published     uint64            `json:"rabbitmq_published"`
	PublishFailed uint64            `json:"rabbitmq_failed"`
}

// Collector tracks per-exchange fetch outcomes and global publish
// outcomes. Safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	fetchOK  map[string]uint64
	fetchErr map[string]uint64

	published     uint64
	publishFailed uint64

	// Rolling window, reset by ReportWindow.
	windowOK            map[string]uint64
	windowErr           map[string]uint64
	windowPublished     uint64
	windowPublishFailed uint64
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		fetchOK:   make(map[string]uint64),
		fetchErr:  make(map[string]uint64),
		windowOK:  make(map[string]uint64),
		windowErr: make(map[string]uint64),
	}
}

// RecordFetchSuccess counts one successful data collection.
func (c *Collector) RecordFetchSuccess(exchange string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchOK[exchange]++
	c.windowOK[exchange]++
}

// RecordFetchFailure counts one failed data collection.
func (c *Collector) RecordFetchFailure(exchange string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchErr[exchange]++
	c.windowErr[exchange]++
}

// RecordPublished counts one successful bus publish.
func (c *Collector) RecordPublished() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published++
	c.windowPublished++
}

// RecordPublishFailed counts one failed bus publish.
func (c *Collector) RecordPublishFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishFailed++
	c.windowPublishFailed++
}

// Snapshot returns a deep copy of the cumulative counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		FetchSuccess:  copyCounts(c.fetchOK),
		FetchFailure:  copyCounts(c.fetchErr),
		Published:     c.published,
		PublishFailed: c.publishFailed,
	}
}

// ReportWindow logs the current window's counters and resets the window.
// Cumulative totals are unaffected.
func (c *Collector) ReportWindow(logger *slog.Logger) {
	c.mu.Lock()
	ok := c.windowOK
	errs := c.windowErr
	published := c.windowPublished
	failed := c.windowPublishFailed
	c.windowOK = make(map[string]uint64)
	c.windowErr = make(map[string]uint64)
	c.windowPublished = 0
	c.windowPublishFailed = 0
	c.mu.Unlock()

	for _, exchange := range exchangeNames(ok, errs) {
		logger.Info("exchange window stats",
			"exchange", exchange,
			"success", ok[exchange],
			"errors", errs[exchange],
		)
	}
	logger.Info("publish window stats",
		"published", published,
		"failed", failed,
	)
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func exchangeNames(a, b map[string]uint64) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
