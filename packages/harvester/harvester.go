// Package harvester walks a store's paginated product feed and accumulates
// raw records, with per-page rate-limit back-off and partial-failure salvage.
package harvester

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"shopharvest/packages/domain"
	"shopharvest/packages/metrics"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// maxRateLimitRetries bounds consecutive 429 retries on a single page. The
// counter resets whenever a page fetch succeeds, so the budget is per-page,
// never global.
const maxRateLimitRetries = 3

var (
	errNotFound    = errors.New("product feed not found")
	errRateLimited = errors.New("rate limited by store")
)

type Config struct {
	PageSize         int           // feed's documented max is 250
	MaxPages         int           // hard safety ceiling, independent of catalog size
	InterPageDelay   time.Duration // pacing between successful full pages
	FetchTimeout     time.Duration // per page attempt, not cumulative
	RateLimitBackoff time.Duration // base unit; attempt N waits N * base
}

func (c *Config) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = 250
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
	if c.InterPageDelay <= 0 {
		c.InterPageDelay = time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.RateLimitBackoff <= 0 {
		c.RateLimitBackoff = 10 * time.Second
	}
}

type Harvester struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Harvester {
	cfg.applyDefaults()
	return &Harvester{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
	}
}

// Harvest fetches pages strictly in order, one in flight at a time, because
// page N's short/empty result decides whether page N+1 is attempted at all.
// It performs network I/O only; all state lives in this frame.
//
// PagesFetched counts pages that yielded at least one record; a terminating
// empty page is not counted.
func (h *Harvester) Harvest(ctx context.Context, baseURL string, progress domain.ProgressFunc) domain.HarvestResult {
	var accumulated []domain.RawProduct
	pagesFetched := 0
	rateLimitRetries := 0

	for page := 1; page <= h.cfg.MaxPages; page++ {
		products, err := h.fetchPage(ctx, baseURL, page)
		if err != nil {
			switch {
			case errors.Is(err, errRateLimited):
				rateLimitRetries++
				metrics.RateLimitRetries.Inc()
				if rateLimitRetries > maxRateLimitRetries {
					slog.Warn("Rate limit retries exhausted", "url", baseURL, "page", page)
					return salvage(accumulated, pagesFetched,
						fmt.Sprintf("aborted on page %d after %d consecutive rate-limit retries", page, maxRateLimitRetries))
				}
				wait := time.Duration(rateLimitRetries) * h.cfg.RateLimitBackoff
				slog.Info("Rate limited, backing off", "url", baseURL, "page", page, "attempt", rateLimitRetries, "wait", wait)
				if sleepErr := sleepCtx(ctx, wait); sleepErr != nil {
					return salvage(accumulated, pagesFetched, sleepErr.Error())
				}
				page-- // retry the same page; accumulated records are kept
				continue
			case errors.Is(err, errNotFound):
				return salvage(accumulated, pagesFetched, fmt.Sprintf("page %d: %s", page, errNotFound))
			default:
				return salvage(accumulated, pagesFetched, fmt.Sprintf("page %d: %s", page, err))
			}
		}
		rateLimitRetries = 0

		// Empty page: normal end of catalog, not an error.
		if len(products) == 0 {
			break
		}

		accumulated = append(accumulated, products...)
		pagesFetched++
		metrics.PagesFetched.Inc()
		if progress != nil {
			progress(page, len(accumulated))
		}
		slog.Debug("Fetched feed page", "url", baseURL, "page", page, "records", len(products), "total", len(accumulated))

		// Short page: this was the last one, no need to ask for more.
		if len(products) < h.cfg.PageSize {
			break
		}

		if page < h.cfg.MaxPages {
			if err := sleepCtx(ctx, h.cfg.InterPageDelay); err != nil {
				return salvage(accumulated, pagesFetched, err.Error())
			}
		}
	}

	return domain.HarvestResult{
		Outcome:      domain.OutcomeSuccess,
		Records:      accumulated,
		PagesFetched: pagesFetched,
	}
}

// salvage prefers partial success over total failure: a CSV of 40% of a
// catalog is worth more to the user than nothing.
func salvage(accumulated []domain.RawProduct, pagesFetched int, errText string) domain.HarvestResult {
	if len(accumulated) == 0 {
		return domain.HarvestResult{
			Outcome:      domain.OutcomeFailure,
			PagesFetched: pagesFetched,
			ErrorMessage: errText,
		}
	}
	return domain.HarvestResult{
		Outcome:      domain.OutcomePartialSuccess,
		Records:      accumulated,
		PagesFetched: pagesFetched,
		Warning:      errText,
	}
}

type feedPage struct {
	Products *[]domain.RawProduct `json:"products"`
}

func (h *Harvester) fetchPage(ctx context.Context, baseURL string, page int) ([]domain.RawProduct, error) {
	pageURL := fmt.Sprintf("%s/products.json?limit=%d&page=%d", baseURL, h.cfg.PageSize, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, fmt.Errorf("fetch timed out: %w", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errRateLimited
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("bad status code: %d", resp.StatusCode)
	}

	var body feedPage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	if body.Products == nil {
		return nil, errors.New("response has no products field")
	}
	return *body.Products, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
