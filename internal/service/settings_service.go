package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-fee-api/internal/models"
	appErrors "github.com/noah-isme/hostel-fee-api/pkg/errors"
)

// SettingsID keys the singleton settings record in both stores.
const SettingsID = "hostel-settings"

type settingsStore interface {
	List(ctx context.Context) ([]*models.HostelSettings, error)
	Create(ctx context.Context, rec *models.HostelSettings) (*models.HostelSettings, error)
	Update(ctx context.Context, id string, fields map[string]any) (*models.HostelSettings, error)
}

// UpdateSettingsRequest holds the payload for settings updates. The form
// floor of 100 on the monthly fee is enforced here.
type UpdateSettingsRequest struct {
	MonthlyFee   float64 `json:"monthlyFee" validate:"required,gte=100"`
	UPIID        string  `json:"upiId" validate:"required"`
	HostelName   string  `json:"hostelName" validate:"required"`
	EnablePayNow bool    `json:"enablePayNow"`
}

// DefaultSettings returns the built-in settings record used when neither
// store has one yet.
func DefaultSettings() *models.HostelSettings {
	return &models.HostelSettings{
		ID:           SettingsID,
		MonthlyFee:   5000,
		UPIID:        "hostel@paytm",
		HostelName:   "Sunrise Hostel",
		EnablePayNow: true,
	}
}

// SettingsService manages the singleton hostel configuration record.
type SettingsService struct {
	settings  settingsStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSettingsService constructs the settings service.
func NewSettingsService(settings settingsStore, validate *validator.Validate, logger *zap.Logger) *SettingsService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{settings: settings, validator: validate, logger: logger}
}

// Get returns the settings record, creating the default lazily when no
// record exists yet.
func (s *SettingsService) Get(ctx context.Context) (*models.HostelSettings, error) {
	records, err := s.settings.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}
	if len(records) > 0 {
		return records[0], nil
	}

	created, err := s.settings.Create(ctx, DefaultSettings())
	if err != nil {
		return nil, err
	}
	s.logger.Info("created default hostel settings")
	return created, nil
}

// Update applies an admin edit to the settings singleton.
func (s *SettingsService) Update(ctx context.Context, req UpdateSettingsRequest) (*models.HostelSettings, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}

	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	return s.settings.Update(ctx, current.ID, map[string]any{
		"monthlyFee":   req.MonthlyFee,
		"upiId":        req.UPIID,
		"hostelName":   req.HostelName,
		"enablePayNow": req.EnablePayNow,
	})
}

// RecordReset stamps the time of a completed monthly fee reset.
func (s *SettingsService) RecordReset(ctx context.Context, t time.Time) error {
	current, err := s.Get(ctx)
	if err != nil {
		return err
	}
	_, err = s.settings.Update(ctx, current.ID, map[string]any{
		"lastMonthlyReset": t.UTC(),
	})
	return err
}
