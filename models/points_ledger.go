package models

import "time"

type PointsSource string

const (
	SourceForm    PointsSource = "FORM"
	SourceWebhook PointsSource = "WEBHOOK"
	SourceManual  PointsSource = "MANUAL"
)

// PointsLedgerEntry is an append-only point delta. Rows are never updated.
type PointsLedgerEntry struct {
	ID              string       `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID          string       `gorm:"type:uuid;not null;index;uniqueIndex:idx_ledger_user_event,priority:1,where:external_event_id IS NOT NULL" json:"user_id"`
	ActivityCode    ActivityCode `gorm:"type:varchar(16);not null;index" json:"activity_code"`
	Delta           int          `gorm:"not null" json:"delta"`
	Source          PointsSource `gorm:"type:varchar(16);not null" json:"source"`
	ExternalEventID *string      `gorm:"uniqueIndex:idx_ledger_user_event,priority:2,where:external_event_id IS NOT NULL" json:"external_event_id,omitempty"`
	Note            string       `gorm:"type:text" json:"note,omitempty"`
	CreatedAt       time.Time    `gorm:"autoCreateTime;index" json:"created_at"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (PointsLedgerEntry) TableName() string {
	return "points_ledger"
}
