// Package domain
package domain

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// FailureReason classifies why a store failed validation.
type FailureReason string

const (
	ReasonNotFound          FailureReason = "not_found"
	ReasonTimeout           FailureReason = "timeout"
	ReasonRateLimited       FailureReason = "rate_limited"
	ReasonMalformedResponse FailureReason = "malformed_response"
	ReasonNetworkError      FailureReason = "network_error"
)

type HarvestOutcome string

const (
	OutcomeSuccess        HarvestOutcome = "success"
	OutcomePartialSuccess HarvestOutcome = "partial_success"
	OutcomeFailure        HarvestOutcome = "failure"
)

// StoreTarget is the canonical form of a user-submitted store URL.
// NormalizedURL always carries a scheme and has no trailing slash.
type StoreTarget struct {
	NormalizedURL string `json:"normalized_url"`
	DisplayName   string `json:"display_name"`
}

type ValidationResult struct {
	Valid              bool
	StoreTarget        StoreTarget
	DetectedVendorName string
	FailureReason      FailureReason
}

// RawProduct is one product object exactly as the feed returned it.
type RawProduct = json.RawMessage

// ProgressFunc is invoked after every page that yielded records, with the
// 1-based page number and the cumulative record count.
type ProgressFunc func(page, total int)

// HarvestResult is the harvester's return contract. The orchestrator
// projects it onto the job row; it is never persisted as-is.
type HarvestResult struct {
	Outcome      HarvestOutcome
	Records      []RawProduct
	PagesFetched int
	Warning      string
	ErrorMessage string
}

// HarvestJob is the externally pollable record of one harvest.
// Status only moves forward: pending -> running -> completed/failed.
type HarvestJob struct {
	ID           string      `json:"id"`
	UserID       string      `json:"-"`
	Status       JobStatus   `json:"status"`
	StoreTarget  StoreTarget `json:"store"`
	ProductCount int         `json:"product_count"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Warning      string      `json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Product is the normalized shape a raw record projects to. Timestamps stay
// as the feed's strings; prices stay decimal strings so no rounding drifts
// in before CSV emission.
type Product struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Handle          string    `json:"handle"`
	DescriptionHTML string    `json:"description_html"`
	Vendor          string    `json:"vendor"`
	ProductType     string    `json:"product_type"`
	Tags            []string  `json:"tags"`
	Variants        []Variant `json:"variants"`
	Images          []Image   `json:"images"`
	CreatedAt       string    `json:"created_at"`
	UpdatedAt       string    `json:"updated_at"`
	PublishedAt     string    `json:"published_at"`
}

type Variant struct {
	ID                int64    `json:"id"`
	Title             string   `json:"title"`
	Price             string   `json:"price"`
	SKU               string   `json:"sku"`
	InventoryQuantity *int     `json:"inventory_quantity,omitempty"`
	Grams             *float64 `json:"grams,omitempty"`
	CompareAtPrice    *string  `json:"compare_at_price,omitempty"`
	Option1           *string  `json:"option1,omitempty"`
	Option2           *string  `json:"option2,omitempty"`
	Option3           *string  `json:"option3,omitempty"`
}

type Image struct {
	ID  int64  `json:"id"`
	Src string `json:"src"`
}
