package middleware

import (
	"sync"

	"github.com/hitoshi/nbhdcity/internal/metrics"
)

// stubCollector はテスト用のメトリクスコレクター。呼び出し回数のみを記録する。
type stubCollector struct {
	mu            sync.Mutex
	tokenValid    int
	tokenInvalid  int
	httpStatuses  []int
	loginOutcomes []string
}

func (c *stubCollector) RecordNeighborhoodCreated() {}
func (c *stubCollector) RecordNameConflict() {}
func (c *stubCollector) RecordJoin() {}
func (c *stubCollector) RecordLeave() {}
func (c *stubCollector) RecordStoreRetry() {}

func (c *stubCollector) RecordLoginOutcome(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loginOutcomes = append(c.loginOutcomes, outcome)
}

func (c *stubCollector) RecordTokenVerification(valid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if valid {
		c.tokenValid++
	} else {
		c.tokenInvalid++
	}
}

func (c *stubCollector) RecordHTTPStatus(statusCode int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpStatuses = append(c.httpStatuses, statusCode)
}

var _ metrics.MetricsCollector = (*stubCollector)(nil)
