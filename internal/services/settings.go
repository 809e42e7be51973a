package services

import (
	"encoding/json"
	"time"

	"github.com/coursebook/backend/internal/models"
	"github.com/coursebook/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsService is the single persistence boundary for small key-value
// blobs (appearance preferences and the like). A missing key and a corrupt
// stored value are both reported as not-found so callers fall back to their
// defaults instead of failing.
type SettingsService struct {
	DB *gorm.DB
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{DB: db}
}

func (s *SettingsService) Get(key string, out interface{}) (bool, error) {
	var setting models.Setting
	if err := s.DB.First(&setting, "key = ?", key).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, err
	}

	if err := json.Unmarshal([]byte(setting.Value), out); err != nil {
		logger.Warn("setting_value_corrupt", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false, nil
	}

	return true, nil
}

func (s *SettingsService) Put(key string, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}

	setting := models.Setting{
		Key:       key,
		Value:     string(encoded),
		UpdatedAt: time.Now().UTC(),
	}

	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

func (s *SettingsService) Delete(key string) error {
	return s.DB.Delete(&models.Setting{}, "key = ?", key).Error
}
