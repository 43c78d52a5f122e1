package harvester

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopharvest/packages/domain"
)

type pageResponse struct {
	status   int
	products int
	delay    time.Duration
}

// scriptedFeed serves a queue of canned responses per page number; once a
// page's queue runs out its last entry repeats. Unscripted pages are empty.
type scriptedFeed struct {
	mu       sync.Mutex
	script   map[int][]pageResponse
	requests int
}

func (f *scriptedFeed) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests++
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		queue := f.script[page]
		resp := pageResponse{status: http.StatusOK, products: 0}
		if len(queue) > 0 {
			resp = queue[0]
			if len(queue) > 1 {
				f.script[page] = queue[1:]
			}
		}
		f.mu.Unlock()

		if resp.delay > 0 {
			time.Sleep(resp.delay)
		}
		if resp.status != http.StatusOK {
			w.WriteHeader(resp.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, productsJSON(page, resp.products))
	}
}

func (f *scriptedFeed) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func productsJSON(page, n int) string {
	var b strings.Builder
	b.WriteString(`{"products":[`)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"id":%d,"title":"product-%d-%d"}`, page*1000+i, page, i)
	}
	b.WriteString(`]}`)
	return b.String()
}

func testHarvester(pageSize, maxPages int) *Harvester {
	return New(Config{
		PageSize:         pageSize,
		MaxPages:         maxPages,
		InterPageDelay:   time.Millisecond,
		FetchTimeout:     time.Second,
		RateLimitBackoff: time.Millisecond,
	})
}

func TestHarvestShortPageStops(t *testing.T) {
	feed := &scriptedFeed{script: map[int][]pageResponse{
		1: {{status: 200, products: 3}},
		2: {{status: 200, products: 3}},
		3: {{status: 200, products: 2}},
		4: {{status: 200, products: 3}}, // must never be requested
	}}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	result := testHarvester(3, 50).Harvest(context.Background(), srv.URL, nil)

	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
	assert.Len(t, result.Records, 8)
	assert.Equal(t, 3, result.PagesFetched)
	assert.Equal(t, 3, feed.requestCount())
}

func TestHarvestEmptyPageStops(t *testing.T) {
	feed := &scriptedFeed{script: map[int][]pageResponse{
		1: {{status: 200, products: 3}},
		2: {{status: 200, products: 0}},
	}}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	result := testHarvester(3, 50).Harvest(context.Background(), srv.URL, nil)

	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
	assert.Len(t, result.Records, 3)
	assert.Equal(t, 1, result.PagesFetched)
	assert.Empty(t, result.ErrorMessage)
	assert.Equal(t, 2, feed.requestCount())
}

func TestHarvestRateLimitRecovery(t *testing.T) {
	feed := &scriptedFeed{script: map[int][]pageResponse{
		1: {{status: 200, products: 3}},
		2: {{status: 429}, {status: 429}, {status: 200, products: 3}},
		3: {{status: 200, products: 1}},
	}}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	result := testHarvester(3, 50).Harvest(context.Background(), srv.URL, nil)

	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
	// Page 2's records appear exactly once despite two retries.
	assert.Len(t, result.Records, 7)
	assert.Equal(t, 3, result.PagesFetched)
	assert.Equal(t, 5, feed.requestCount())
}

func TestHarvestRateLimitExhaustedNoData(t *testing.T) {
	feed := &scriptedFeed{script: map[int][]pageResponse{
		1: {{status: 429}},
	}}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	result := testHarvester(3, 50).Harvest(context.Background(), srv.URL, nil)

	assert.Equal(t, domain.OutcomeFailure, result.Outcome)
	assert.Empty(t, result.Records)
	assert.NotEmpty(t, result.ErrorMessage)
	// Initial attempt plus three retries.
	assert.Equal(t, 4, feed.requestCount())
}

func TestHarvestRateLimitExhaustedWithDataIsPartial(t *testing.T) {
	feed := &scriptedFeed{script: map[int][]pageResponse{
		1: {{status: 200, products: 3}},
		2: {{status: 429}},
	}}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	result := testHarvester(3, 50).Harvest(context.Background(), srv.URL, nil)

	assert.Equal(t, domain.OutcomePartialSuccess, result.Outcome)
	assert.Len(t, result.Records, 3)
	assert.NotEmpty(t, result.Warning)
	assert.Equal(t, 1, result.PagesFetched)
}

func TestHarvestServerErrorMidRunIsPartial(t *testing.T) {
	feed := &scriptedFeed{script: map[int][]pageResponse{
		1: {{status: 200, products: 3}},
		2: {{status: 200, products: 3}},
		3: {{status: 500}},
	}}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	result := testHarvester(3, 50).Harvest(context.Background(), srv.URL, nil)

	assert.Equal(t, domain.OutcomePartialSuccess, result.Outcome)
	assert.Len(t, result.Records, 6)
	assert.Equal(t, 2, result.PagesFetched)
	assert.NotEmpty(t, result.Warning)
}

func TestHarvestNotFoundFirstPageFails(t *testing.T) {
	feed := &scriptedFeed{script: map[int][]pageResponse{
		1: {{status: 404}},
	}}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	result := testHarvester(3, 50).Harvest(context.Background(), srv.URL, nil)

	assert.Equal(t, domain.OutcomeFailure, result.Outcome)
	assert.Empty(t, result.Records)
	assert.Contains(t, result.ErrorMessage, "not found")
	assert.Equal(t, 1, feed.requestCount())
}

func TestHarvestTimeoutWithDataIsPartial(t *testing.T) {
	feed := &scriptedFeed{script: map[int][]pageResponse{
		1: {{status: 200, products: 3}},
		2: {{status: 200, products: 3, delay: 300 * time.Millisecond}},
	}}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	h := New(Config{
		PageSize:         3,
		MaxPages:         50,
		InterPageDelay:   time.Millisecond,
		FetchTimeout:     50 * time.Millisecond,
		RateLimitBackoff: time.Millisecond,
	})
	result := h.Harvest(context.Background(), srv.URL, nil)

	assert.Equal(t, domain.OutcomePartialSuccess, result.Outcome)
	assert.Len(t, result.Records, 3)
	assert.Contains(t, result.Warning, "timed out")
}

func TestHarvestMaxPagesCeiling(t *testing.T) {
	// Every page is full; the ceiling must cut the run off as a success.
	feed := &scriptedFeed{script: map[int][]pageResponse{}}
	for page := 1; page <= 10; page++ {
		feed.script[page] = []pageResponse{{status: 200, products: 3}}
	}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	result := testHarvester(3, 4).Harvest(context.Background(), srv.URL, nil)

	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
	assert.Len(t, result.Records, 12)
	assert.Equal(t, 4, result.PagesFetched)
	assert.Equal(t, 4, feed.requestCount())
}

func TestHarvestMalformedPageNoDataFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items": []}`)
	}))
	defer srv.Close()

	result := testHarvester(3, 50).Harvest(context.Background(), srv.URL, nil)

	assert.Equal(t, domain.OutcomeFailure, result.Outcome)
	assert.Contains(t, result.ErrorMessage, "products")
}

func TestHarvestProgressCallback(t *testing.T) {
	feed := &scriptedFeed{script: map[int][]pageResponse{
		1: {{status: 200, products: 3}},
		2: {{status: 200, products: 2}},
	}}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	type call struct{ page, total int }
	var calls []call
	result := testHarvester(3, 50).Harvest(context.Background(), srv.URL, func(page, total int) {
		calls = append(calls, call{page, total})
	})

	require.Equal(t, domain.OutcomeSuccess, result.Outcome)
	require.Len(t, calls, 2)
	assert.Equal(t, call{1, 3}, calls[0])
	assert.Equal(t, call{2, 5}, calls[1])
}

func TestHarvestContextCancelSalvages(t *testing.T) {
	feed := &scriptedFeed{script: map[int][]pageResponse{
		1: {{status: 200, products: 3}},
		2: {{status: 200, products: 3}},
	}}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	h := New(Config{
		PageSize:         3,
		MaxPages:         50,
		InterPageDelay:   time.Hour, // cancellation fires during this sleep
		FetchTimeout:     time.Second,
		RateLimitBackoff: time.Millisecond,
	})

	done := make(chan domain.HarvestResult, 1)
	go func() { done <- h.Harvest(ctx, srv.URL, nil) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	result := <-done
	assert.Equal(t, domain.OutcomePartialSuccess, result.Outcome)
	assert.Len(t, result.Records, 3)
}
