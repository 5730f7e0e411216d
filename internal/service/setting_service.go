package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/model"
)

// SettingService reads and writes the global exam configuration.
type SettingService struct {
	store docstore.Store
	log   zerolog.Logger
}

func NewSettingService(store docstore.Store, log zerolog.Logger) *SettingService {
	return &SettingService{
		store: store,
		log:   log.With().Str("component", "setting_service").Logger(),
	}
}

// Current returns the settings document, falling back to defaults when
// it is missing or unreadable. An exam must be able to start with an
// empty store.
func (s *SettingService) Current(ctx context.Context) model.Settings {
	doc, err := s.store.Get(ctx, config.ColSettings, config.SettingsDocID)
	if err != nil {
		if err != docstore.ErrNotFound {
			s.log.Warn().Err(err).Msg("Settings read failed, using defaults")
		}
		return model.DefaultSettings()
	}

	settings := model.DefaultSettings()
	if err := docstore.Decode(doc, &settings); err != nil {
		s.log.Warn().Err(err).Msg("Settings document undecodable, using defaults")
		return model.DefaultSettings()
	}
	return settings
}

// Update replaces the settings document. Running sessions keep the
// settings they started with.
func (s *SettingService) Update(ctx context.Context, settings model.Settings) error {
	doc, err := docstore.Encode(settings)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, config.ColSettings, config.SettingsDocID, doc); err != nil {
		s.log.Error().Err(err).Msg("Failed to save settings")
		return err
	}
	return nil
}
