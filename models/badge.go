package models

import (
	"time"
)

// Badge: static catalog row. Criteria keys are evaluated by the badge service, e.g.
// {"total_points": 100}, {"approved_submissions": 5}, {"activity:SHINE": 1}.
type Badge struct {
	Code        string           `gorm:"primaryKey;type:varchar(64)" json:"code"`
	Name        string           `gorm:"not null" json:"name"`
	Description string           `json:"description"`
	IconURL     string           `gorm:"type:text" json:"icon_url,omitempty"`
	Criteria    map[string]int64 `gorm:"type:jsonb;serializer:json" json:"criteria"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func (Badge) TableName() string {
	return "badges"
}

// EarnedBadge: awarded instance, unique per (user, badge).
type EarnedBadge struct {
	ID        string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_earned_user_badge,priority:1" json:"user_id"`
	BadgeCode string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_earned_user_badge,priority:2" json:"badge_code"`
	EarnedAt  time.Time `gorm:"autoCreateTime" json:"earned_at"`

	Badge *Badge `gorm:"foreignKey:BadgeCode;references:Code" json:"badge,omitempty"`
	User  *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (EarnedBadge) TableName() string {
	return "earned_badges"
}

// BadgeCatalog is seeded at startup.
var BadgeCatalog = []Badge{
	{
		Code:        "FIRST_STEP",
		Name:        "First Step",
		Description: "First approved submission",
		Criteria:    map[string]int64{"approved_submissions": 1},
	},
	{
		Code:        "LEARNER",
		Name:        "Learner",
		Description: "Completed the Learn stage",
		Criteria:    map[string]int64{"activity:LEARN": 1},
	},
	{
		Code:        "EXPLORER",
		Name:        "Explorer",
		Description: "Completed the Explore stage",
		Criteria:    map[string]int64{"activity:EXPLORE": 1},
	},
	{
		Code:        "AMPLIFIER",
		Name:        "Amplifier",
		Description: "Completed the Amplify stage",
		Criteria:    map[string]int64{"activity:AMPLIFY": 1},
	},
	{
		Code:        "PRESENTER",
		Name:        "Presenter",
		Description: "Completed the Present stage",
		Criteria:    map[string]int64{"activity:PRESENT": 1},
	},
	{
		Code:        "SHINING_STAR",
		Name:        "Shining Star",
		Description: "Completed the Shine stage",
		Criteria:    map[string]int64{"activity:SHINE": 1},
	},
	{
		Code:        "LEAPS_FINISHER",
		Name:        "LEAPS Finisher",
		Description: "Approved submissions in all five stages",
		Criteria:    map[string]int64{"distinct_activities": 5},
	},
	{
		Code:        "CENTURY",
		Name:        "Century",
		Description: "Earned 100 points",
		Criteria:    map[string]int64{"total_points": 100},
	},
}
