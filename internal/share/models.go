package share

import "time"

type Snapshot struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"-"`
	Slug           string     `gorm:"type:varchar(16);uniqueIndex;not null" json:"shareId"`
	Question       string     `gorm:"type:text;not null" json:"question"`
	Answer         string     `gorm:"type:text;not null" json:"answer"`
	OwnerID        *string    `gorm:"type:varchar(64);index" json:"ownerId,omitempty"`
	ConversationID *string    `gorm:"type:varchar(26)" json:"conversationId,omitempty"`
	Views          int64      `gorm:"not null;default:0" json:"views"`
	Active         bool       `gorm:"not null;default:true;index" json:"-"`
	ExpiresAt      *time.Time `gorm:"index" json:"expiresAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"-"`
}

func (Snapshot) TableName() string { return "shared_snapshots" }

// Anonymous reports whether anyone may deactivate the snapshot.
func (s *Snapshot) Anonymous() bool {
	return s.OwnerID == nil || *s.OwnerID == "" || *s.OwnerID == AnonymousOwner
}

// Preview is the list view of a snapshot owned by a user.
type Preview struct {
	ShareID   string     `json:"shareId"`
	Question  string     `json:"question"`
	Views     int64      `json:"views"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}
