// Package validator probes a store for a public product feed before any
// credits or harvest work are committed to it.
package validator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"shopharvest/packages/domain"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

type Validator struct {
	client *http.Client
}

func New(timeout time.Duration) *Validator {
	return &Validator{
		client: &http.Client{Timeout: timeout},
	}
}

// feedProbe distinguishes "products key absent" from "products key empty":
// only the former is a malformed response.
type feedProbe struct {
	Products *[]domain.RawProduct `json:"products"`
}

// Validate issues a single limit=1 probe. Validation never retries; the
// harvester owns back-off because it runs far more requests.
func (v *Validator) Validate(ctx context.Context, target domain.StoreTarget) domain.ValidationResult {
	result := domain.ValidationResult{StoreTarget: target}

	probeURL := target.NormalizedURL + "/products.json?limit=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		result.FailureReason = domain.ReasonNetworkError
		return result
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			result.FailureReason = domain.ReasonTimeout
		} else {
			result.FailureReason = domain.ReasonNetworkError
		}
		slog.Debug("Store probe failed", "url", probeURL, "error", err)
		return result
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		result.FailureReason = domain.ReasonNotFound
		return result
	case resp.StatusCode == http.StatusTooManyRequests:
		result.FailureReason = domain.ReasonRateLimited
		return result
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		slog.Debug("Store probe returned bad status", "url", probeURL, "status_code", resp.StatusCode)
		result.FailureReason = domain.ReasonNetworkError
		return result
	}

	var probe feedProbe
	if err := json.NewDecoder(resp.Body).Decode(&probe); err != nil || probe.Products == nil {
		result.FailureReason = domain.ReasonMalformedResponse
		return result
	}

	result.Valid = true
	if len(*probe.Products) > 0 {
		var first struct {
			Vendor string `json:"vendor"`
		}
		if err := json.Unmarshal((*probe.Products)[0], &first); err == nil && first.Vendor != "" {
			result.DetectedVendorName = first.Vendor
			result.StoreTarget.DisplayName = first.Vendor
		}
	}
	return result
}

func isTimeout(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}
