// Package results serves water-analysis results to the account that
// submitted the sample.
package results

import (
	"context"

	"github.com/fjod/aquakit/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Store interface {
	ListResults(ctx context.Context, accountID string) ([]domain.LabResult, error)
	GetResult(ctx context.Context, accountID string, id uuid.UUID) (*domain.LabResult, error)
}

type Reports interface {
	ReportURL(ctx context.Context, key string) (string, error)
}

type Service struct {
	store   Store
	reports Reports
	log     *zap.Logger
}

func NewService(store Store, reports Reports, log *zap.Logger) *Service {
	return &Service{store: store, reports: reports, log: log.Named("results")}
}

// List omits report links; only Get signs them.
func (s *Service) List(ctx context.Context, accountID string) ([]domain.LabResult, error) {
	return s.store.ListResults(ctx, accountID)
}

// Get attaches a download link when the report is ready. A signing failure
// is logged and the result is returned without a link.
func (s *Service) Get(ctx context.Context, accountID string, id uuid.UUID) (*domain.LabResult, error) {
	result, err := s.store.GetResult(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if result.ReportKey == "" || result.Status != domain.ResultCompleted || s.reports == nil {
		return result, nil
	}

	url, err := s.reports.ReportURL(ctx, result.ReportKey)
	if err != nil {
		s.log.Warn("report link unavailable",
			zap.String("result_id", id.String()),
			zap.Error(err))
		return result, nil
	}
	result.ReportURL = url
	return result, nil
}
