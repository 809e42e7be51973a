package models

import "github.com/google/uuid"

// Subject is the leaf content node: free-text notes plus an ordered list of
// image URLs (remote URLs, Data-URIs, or object-storage URLs).
type Subject struct {
	BaseModel
	Title     string    `json:"title" gorm:"type:varchar(255);not null"`
	Notes     string    `json:"notes" gorm:"type:text;not null;default:''"`
	Images    []string  `json:"images" gorm:"type:jsonb;serializer:json"`
	TopicID   uuid.UUID `json:"topicID" gorm:"type:uuid;not null;index"`
	SortOrder int       `json:"sortOrder" gorm:"not null;default:0"`
}

func (Subject) TableName() string {
	return "subjects"
}
