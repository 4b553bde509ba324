package models

import (
	"time"

	"gorm.io/datatypes"
)

type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "PENDING"
	StatusApproved SubmissionStatus = "APPROVED"
	StatusRejected SubmissionStatus = "REJECTED"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

// Submission is one piece of evidence for a stage. Only a reviewer moves it out of PENDING.
type Submission struct {
	ID           string           `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID       string           `gorm:"type:uuid;not null;index" json:"user_id"`
	ActivityCode ActivityCode     `gorm:"type:varchar(16);not null;index" json:"activity_code"`
	Status       SubmissionStatus `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	Visibility   Visibility       `gorm:"type:varchar(16);not null;default:'PRIVATE'" json:"visibility"`
	// json, not jsonb: the stored bytes come back exactly as written.
	Payload    datatypes.JSON `gorm:"type:json;not null" json:"payload"`
	ReviewerID *string        `gorm:"type:uuid;index" json:"reviewer_id,omitempty"`
	ReviewNote *string        `gorm:"type:text" json:"review_note,omitempty"`
	ReviewedAt *time.Time     `json:"reviewed_at,omitempty"`

	User        *User                  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Attachments []SubmissionAttachment `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"attachments,omitempty"`

	Timestamps
}

func (Submission) TableName() string {
	return "submissions"
}

// SubmissionAttachment is an uploaded evidence file. The hash is unique per submission.
type SubmissionAttachment struct {
	ID           string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	SubmissionID string    `gorm:"type:uuid;not null;uniqueIndex:idx_attachment_submission_hash,priority:1" json:"submission_id"`
	Path         string    `gorm:"type:text;not null" json:"path"`
	SHA256       string    `gorm:"column:sha256;type:char(64);not null;uniqueIndex:idx_attachment_submission_hash,priority:2" json:"sha256"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (SubmissionAttachment) TableName() string {
	return "submission_attachments"
}
