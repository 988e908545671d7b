package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/aquakit/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

var ErrItemNotFound = errors.New("catalog item not found")

// Repository serves the test kit catalog from SQLite.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping catalog database: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

const selectItems = `
	SELECT id, name, description, price, stock, image_url, kind, parameters, created_at
	FROM test_kits`

func (r *Repository) ListItems(ctx context.Context) ([]*domain.CatalogItem, error) {
	rows, err := r.db.QueryContext(ctx, selectItems+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var items []*domain.CatalogItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

func (r *Repository) GetItem(ctx context.Context, id string) (*domain.CatalogItem, error) {
	row := r.db.QueryRowContext(ctx, selectItems+` WHERE id = ?`, id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*domain.CatalogItem, error) {
	var (
		item       domain.CatalogItem
		price      string
		kind       string
		parameters string
	)
	err := s.Scan(
		&item.ID,
		&item.Name,
		&item.Description,
		&price,
		&item.Stock,
		&item.ImageURL,
		&kind,
		&parameters,
		&item.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan catalog item: %w", err)
	}

	item.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q for %s: %w", price, item.ID, err)
	}
	item.Kind = domain.KitKind(kind)
	if err := json.Unmarshal([]byte(parameters), &item.Parameters); err != nil {
		return nil, fmt.Errorf("invalid parameters for %s: %w", item.ID, err)
	}

	return &item, nil
}
