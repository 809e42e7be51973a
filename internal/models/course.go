package models

import "github.com/google/uuid"

// Course is a user-owned container of topics. SortOrder is kept contiguous
// 1..N within an owner's course set; reordering reassigns the whole range.
type Course struct {
	BaseModel
	Name        string    `json:"name" gorm:"type:varchar(255);not null"`
	Description string    `json:"description" gorm:"type:text;not null;default:''"`
	OwnerID     uuid.UUID `json:"ownerID" gorm:"type:uuid;not null;index"`
	SortOrder   int       `json:"sortOrder" gorm:"not null;default:0"`
	Topics      []Topic   `json:"topics,omitempty" gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE"`
	Owner       User      `json:"-" gorm:"foreignKey:OwnerID;references:ID"`
}

func (Course) TableName() string {
	return "courses"
}
