// Package db
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shopharvest/packages/domain"
)

var ErrJobNotFound = errors.New("job not found")

// Storage implements the orchestrator's JobStore, ResultStore and Ledger
// boundaries on Postgres. Schema lives in schema.sql.
type Storage struct {
	DB *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Storage, error) {
	db, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	return &Storage{DB: db}, nil
}

func (s *Storage) Close() {
	s.DB.Close()
}

func (s *Storage) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}

// --- JobStore ---

func (s *Storage) Create(ctx context.Context, job domain.HarvestJob) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO harvest_jobs (id, user_id, status, store_url, display_name, product_count, error_message, warning, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.UserID, string(job.Status), job.StoreTarget.NormalizedURL, job.StoreTarget.DisplayName,
		job.ProductCount, job.ErrorMessage, job.Warning, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *Storage) Update(ctx context.Context, job domain.HarvestJob) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE harvest_jobs
		SET status = $2, product_count = $3, error_message = $4, warning = $5, updated_at = $6
		WHERE id = $1`,
		job.ID, string(job.Status), job.ProductCount, job.ErrorMessage, job.Warning, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, jobID string) (domain.HarvestJob, error) {
	var job domain.HarvestJob
	var status string
	err := s.DB.QueryRow(ctx, `
		SELECT id, user_id, status, store_url, display_name, product_count, error_message, warning, created_at, updated_at
		FROM harvest_jobs WHERE id = $1`, jobID,
	).Scan(&job.ID, &job.UserID, &status, &job.StoreTarget.NormalizedURL, &job.StoreTarget.DisplayName,
		&job.ProductCount, &job.ErrorMessage, &job.Warning, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.HarvestJob{}, ErrJobNotFound
		}
		return domain.HarvestJob{}, fmt.Errorf("failed to load job: %w", err)
	}
	job.Status = domain.JobStatus(status)
	return job, nil
}

// --- ResultStore ---

// PutProducts writes the normalized records exactly once, in feed order.
// COPY keeps large catalogs to a single round trip.
func (s *Storage) PutProducts(ctx context.Context, jobID string, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(products))
	for i, p := range products {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal product %d: %w", p.ID, err)
		}
		rows = append(rows, []any{jobID, i, data})
	}
	return s.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"harvest_products"},
			[]string{"job_id", "position", "product"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to bulk insert products: %w", err)
		}
		return nil
	})
}

// GetProducts returns a job's persisted records in their original order.
func (s *Storage) GetProducts(ctx context.Context, jobID string) ([]domain.Product, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT product FROM harvest_products WHERE job_id = $1 ORDER BY position`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		var p domain.Product
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// --- Ledger ---

func (s *Storage) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := s.DB.QueryRow(ctx, `SELECT balance FROM credits WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

// Debit decrements the balance and logs the transaction atomically. The
// guarded UPDATE makes a concurrent-spend race surface as a plain error
// instead of a negative balance.
func (s *Storage) Debit(ctx context.Context, userID string, amount int, jobID string) error {
	return s.WithTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE credits SET balance = balance - $2 WHERE user_id = $1 AND balance >= $2`,
			userID, amount)
		if err != nil {
			return fmt.Errorf("failed to debit credits: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("balance below %d for user %s", amount, userID)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO credit_transactions (user_id, amount, job_id) VALUES ($1, $2, $3)`,
			userID, -amount, jobID)
		if err != nil {
			return fmt.Errorf("failed to log credit transaction: %w", err)
		}
		return nil
	})
}

// Refund credits a user back, e.g. from an operator tool after a disputed
// partial harvest. The core never calls it on the happy path.
func (s *Storage) Refund(ctx context.Context, userID string, amount int, jobID string) error {
	return s.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO credits (user_id, balance) VALUES ($1, $2)
			ON CONFLICT (user_id) DO UPDATE SET balance = credits.balance + $2`,
			userID, amount); err != nil {
			return fmt.Errorf("failed to refund credits: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO credit_transactions (user_id, amount, job_id) VALUES ($1, $2, $3)`,
			userID, amount, jobID); err != nil {
			return fmt.Errorf("failed to log credit transaction: %w", err)
		}
		return nil
	})
}

func (s *Storage) LogStats(ctx context.Context) {
	var pending, running int
	err := s.DB.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'running')
		FROM harvest_jobs`).Scan(&pending, &running)
	if err != nil {
		slog.Error("Failed to read job stats", "error", err)
		return
	}
	slog.Info("Job queue stats", "pending", pending, "running", running)
}
