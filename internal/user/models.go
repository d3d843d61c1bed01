package user

import "time"

type User struct {
	ID         string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	Name       string    `gorm:"type:varchar(128);not null" json:"name"`
	Email      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	ProviderID *string   `gorm:"type:varchar(128);uniqueIndex" json:"providerId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (User) TableName() string { return "users" }
