package models

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

type User struct {
	BaseModel
	Email        string   `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Username     string   `json:"username" gorm:"type:varchar(100);not null"`
	PasswordHash string   `json:"-" gorm:"type:text;not null"`
	Role         UserRole `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	AvatarURL    *string  `json:"avatarURL,omitempty" gorm:"type:text"`
	Courses      []Course `json:"-" gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
}

func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
