package settings

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"finsights/internal/domain"
	"finsights/internal/settings/mocks"
)

type SettingsServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	store *mocks.MockStore
	jobs  *mocks.MockJobStore
	keys  *mocks.MockKeyValidator

	service *Service
}

func (s *SettingsServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.store = mocks.NewMockStore(s.ctrl)
	s.jobs = mocks.NewMockJobStore(s.ctrl)
	s.keys = mocks.NewMockKeyValidator(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.service = NewService(s.store, s.jobs, s.keys, logger)
}

func (s *SettingsServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSettingsServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SettingsServiceTestSuite))
}

func validSettings() domain.Settings {
	return domain.Settings{
		APIKey:            "AIzaSy-test-key-0123456789",
		Model:             "gemini-2.5-flash",
		MaxConcurrent:     3,
		RequestsPerMinute: 10,
		RequestTimeout:    60 * time.Second,
		MaxAttempts:       3,
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        60 * time.Second,
		DedupWindow:       24 * time.Hour,
		PreferredSources:  []string{"moneycontrol.com", "economictimes.indiatimes.com"},
	}
}

func (s *SettingsServiceTestSuite) TestSnapshot() {
	ctx := context.Background()
	cfg := validSettings()
	jobs := []domain.CategoryJob{
		{ID: 1, Name: "market_overview", Category: "market", Enabled: true},
		{ID: 2, Name: "sector_banking", Category: "sector", Subcategory: "banking", Enabled: true},
	}

	s.store.EXPECT().Load(ctx).Return(cfg, nil)
	s.jobs.EXPECT().ListEnabled(ctx).Return(jobs, nil)

	snap, err := s.service.Snapshot(ctx)

	s.NoError(err)
	s.Equal(cfg.APIKey, snap.APIKey)
	s.Equal(cfg.DedupWindow, snap.DedupWindow)
	s.Len(snap.Jobs, 2)
}

func (s *SettingsServiceTestSuite) TestSnapshot_MissingKey() {
	ctx := context.Background()
	cfg := validSettings()
	cfg.APIKey = ""

	s.store.EXPECT().Load(ctx).Return(cfg, nil)

	snap, err := s.service.Snapshot(ctx)

	s.ErrorIs(err, domain.ErrNotConfigured)
	s.Nil(snap)
}

func (s *SettingsServiceTestSuite) TestSnapshot_LoadError() {
	ctx := context.Background()

	s.store.EXPECT().Load(ctx).Return(domain.Settings{}, errors.New("pq: down"))

	snap, err := s.service.Snapshot(ctx)

	s.Error(err)
	s.Nil(snap)
	s.Contains(err.Error(), "load settings")
}

func (s *SettingsServiceTestSuite) TestUpdate_UnchangedKeySkipsProviderCall() {
	ctx := context.Background()
	cfg := validSettings()
	next := cfg
	next.MaxConcurrent = 5

	s.store.EXPECT().Load(ctx).Return(cfg, nil)
	s.store.EXPECT().Save(ctx, next).Return(nil)

	s.NoError(s.service.Update(ctx, next))
}

func (s *SettingsServiceTestSuite) TestUpdate_ChangedKeyIsVerified() {
	ctx := context.Background()
	cfg := validSettings()
	next := cfg
	next.APIKey = "AIzaSy-replacement-key-9876543210"

	s.store.EXPECT().Load(ctx).Return(cfg, nil)
	s.keys.EXPECT().ValidateKey(ctx, next.APIKey, next.Model).Return(nil)
	s.store.EXPECT().Save(ctx, next).Return(nil)

	s.NoError(s.service.Update(ctx, next))
}

func (s *SettingsServiceTestSuite) TestUpdate_RejectsInvalidKey() {
	ctx := context.Background()
	cfg := validSettings()
	next := cfg
	next.APIKey = "AIzaSy-replacement-key-9876543210"

	s.store.EXPECT().Load(ctx).Return(cfg, nil)
	s.keys.EXPECT().ValidateKey(ctx, next.APIKey, next.Model).
		Return(domain.ErrInvalidCredential)

	err := s.service.Update(ctx, next)

	s.ErrorIs(err, domain.ErrInvalidCredential)
}

func (s *SettingsServiceTestSuite) TestUpdate_ValidatesStruct() {
	ctx := context.Background()

	bad := validSettings()
	bad.APIKey = "too-short"

	err := s.service.Update(ctx, bad)

	s.Error(err)
	s.Contains(err.Error(), "validate settings")
}

func (s *SettingsServiceTestSuite) TestUpdate_ValidatesRanges() {
	ctx := context.Background()

	bad := validSettings()
	bad.MaxConcurrent = 40

	s.Error(s.service.Update(ctx, bad))

	bad = validSettings()
	bad.DedupWindow = time.Minute

	s.Error(s.service.Update(ctx, bad))
}
