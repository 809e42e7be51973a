package models

import "github.com/google/uuid"

type Topic struct {
	BaseModel
	Title     string    `json:"title" gorm:"type:varchar(255);not null"`
	CourseID  uuid.UUID `json:"courseID" gorm:"type:uuid;not null;index"`
	SortOrder int       `json:"sortOrder" gorm:"not null;default:0"`
	Subjects  []Subject `json:"subjects,omitempty" gorm:"foreignKey:TopicID;constraint:OnDelete:CASCADE"`
}

func (Topic) TableName() string {
	return "topics"
}
