package models

import "time"

// Setting is a typed key-value row used for small persisted blobs such as
// per-user appearance preferences. Value holds raw JSON; decoding failures
// are treated as a missing key by the settings service.
type Setting struct {
	Key       string    `json:"key" gorm:"type:varchar(255);primaryKey"`
	Value     string    `json:"value" gorm:"type:text;not null"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null"`
}

func (Setting) TableName() string {
	return "settings"
}
