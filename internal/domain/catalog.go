package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type KitKind string

const (
	KitBasic       KitKind = "basic"
	KitAdvanced    KitKind = "advanced"
	KitSpecialized KitKind = "specialized"
)

// CatalogItem is a purchasable water test kit.
type CatalogItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"image_url"`
	Kind        KitKind         `json:"kind"`
	Parameters  []string        `json:"parameters"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (c CatalogItem) InStock() bool { return c.Stock > 0 }
