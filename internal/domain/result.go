package domain

import (
	"time"

	"github.com/google/uuid"
)

type ResultStatus string

const (
	ResultPending    ResultStatus = "pending"
	ResultProcessing ResultStatus = "processing"
	ResultCompleted  ResultStatus = "completed"
)

// OverallStatus summarises a completed lab result.
type OverallStatus string

const (
	OverallNormal  OverallStatus = "normal"
	OverallWarning OverallStatus = "warning"
	OverallAlert   OverallStatus = "alert"
)

type ParameterReading struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Unit     string `json:"unit"`
	Status   string `json:"status"` // normal, elevated or unsafe
	MaxLimit string `json:"max_limit"`
}

type LabResult struct {
	ID            uuid.UUID          `json:"id"`
	AccountID     string             `json:"account_id"`
	OrderID       *uuid.UUID         `json:"order_id,omitempty"`
	SampleID      string             `json:"sample_id"`
	CatalogItemID string             `json:"catalog_item_id"`
	KitName       string             `json:"kit_name"`
	Status        ResultStatus       `json:"status"`
	OverallStatus OverallStatus      `json:"overall_status,omitempty"`
	Summary       string             `json:"summary"`
	Parameters    []ParameterReading `json:"parameters"`
	ReportKey     string             `json:"-"`
	ReportURL     string             `json:"report_url,omitempty"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}
