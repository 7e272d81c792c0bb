package job

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

type Repository interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	UpdateStatus(ctx context.Context, id, status string, pct float64, errMsg string) error
	// UpdateStatusIfNotTerminal applies the update only while the job has not
	// reached a terminal status. It reports whether the update was applied,
	// which is how concurrent reporters decide the single terminal winner.
	UpdateStatusIfNotTerminal(ctx context.Context, id, status string, pct float64) (bool, error)
	UpdateProductResult(ctx context.Context, jobID string, serial int, outputs []string, outcome string) error
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, j *Job) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if j.Status == "" {
		j.Status = StatusPending
	}

	query := `INSERT INTO jobs (status, completion_pct) VALUES ($1, $2) RETURNING id, created_at, updated_at`
	if err := tx.QueryRowContext(ctx, query, j.Status, j.CompletionPct).Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return err
	}

	for i := range j.Products {
		p := &j.Products[i]
		if p.OutputURLs == nil {
			p.OutputURLs = []string{}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO products (job_id, serial_number, product_name, input_urls, output_urls, outcome) VALUES ($1, $2, $3, $4, $5, $6)`,
			j.ID, p.SerialNumber, p.Name, pq.Array(p.InputURLs), pq.Array(p.OutputURLs), p.Outcome)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	j := &Job{}
	query := `SELECT id, status, completion_pct, error_message, created_at, updated_at FROM jobs WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&j.ID, &j.Status, &j.CompletionPct, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT serial_number, product_name, input_urls, output_urls, outcome FROM products WHERE job_id = $1 ORDER BY serial_number`,
		id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.SerialNumber, &p.Name, pq.Array(&p.InputURLs), pq.Array(&p.OutputURLs), &p.Outcome); err != nil {
			return nil, err
		}
		j.Products = append(j.Products, p)
	}
	return j, rows.Err()
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string, pct float64, errMsg string) error {
	query := `UPDATE jobs SET status = $1, completion_pct = $2, error_message = $3, updated_at = NOW() WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, status, pct, errMsg, id)
	return err
}

func (r *PostgresRepo) UpdateStatusIfNotTerminal(ctx context.Context, id, status string, pct float64) (bool, error) {
	query := `UPDATE jobs SET status = $1, completion_pct = $2, updated_at = NOW() WHERE id = $3 AND status NOT IN ($4, $5)`
	res, err := r.db.ExecContext(ctx, query, status, pct, id, StatusCompleted, StatusFailed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresRepo) UpdateProductResult(ctx context.Context, jobID string, serial int, outputs []string, outcome string) error {
	if outputs == nil {
		outputs = []string{}
	}
	query := `UPDATE products SET output_urls = $1, outcome = $2, updated_at = NOW() WHERE job_id = $3 AND serial_number = $4`
	res, err := r.db.ExecContext(ctx, query, pq.Array(outputs), outcome, jobID, serial)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("product %d of job %s not found", serial, jobID)
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&count)
	return count, err
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
