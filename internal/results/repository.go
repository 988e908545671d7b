package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/aquakit/internal/domain"
	"github.com/google/uuid"
)

var ErrResultNotFound = errors.New("lab result not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const resultColumns = `id, account_id, order_id, sample_id, catalog_item_id, kit_name, status,
	overall_status, summary, parameters, report_key, completed_at, created_at`

func (r *Repository) ListResults(ctx context.Context, accountID string) ([]domain.LabResult, error) {
	query := `SELECT ` + resultColumns + ` FROM lab_results WHERE account_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lab results: %w", err)
	}
	defer rows.Close()

	results := make([]domain.LabResult, 0)
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lab results: %w", err)
	}
	return results, nil
}

// GetResult only returns results owned by accountID.
func (r *Repository) GetResult(ctx context.Context, accountID string, id uuid.UUID) (*domain.LabResult, error) {
	query := `SELECT ` + resultColumns + ` FROM lab_results WHERE id = $1 AND account_id = $2`

	result, err := scanResult(r.db.QueryRowContext(ctx, query, id, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	return result, err
}

// CreateResult registers a sample submitted for analysis.
func (r *Repository) CreateResult(ctx context.Context, result *domain.LabResult) error {
	readings := result.Parameters
	if readings == nil {
		readings = []domain.ParameterReading{}
	}
	params, err := json.Marshal(readings)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}

	query := `INSERT INTO lab_results (id, account_id, order_id, sample_id, catalog_item_id, kit_name, status, parameters, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`

	_, err = r.db.ExecContext(ctx, query,
		result.ID,
		result.AccountID,
		result.OrderID,
		result.SampleID,
		result.CatalogItemID,
		result.KitName,
		result.Status,
		params)
	if err != nil {
		return fmt.Errorf("failed to create lab result: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*domain.LabResult, error) {
	var (
		result      domain.LabResult
		orderID     uuid.NullUUID
		params      []byte
		completedAt sql.NullTime
	)
	err := row.Scan(
		&result.ID,
		&result.AccountID,
		&orderID,
		&result.SampleID,
		&result.CatalogItemID,
		&result.KitName,
		&result.Status,
		&result.OverallStatus,
		&result.Summary,
		&params,
		&result.ReportKey,
		&completedAt,
		&result.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan lab result: %w", err)
	}

	if orderID.Valid {
		result.OrderID = &orderID.UUID
	}
	if completedAt.Valid {
		result.CompletedAt = &completedAt.Time
	}
	if err := json.Unmarshal(params, &result.Parameters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameters: %w", err)
	}
	return &result, nil
}
