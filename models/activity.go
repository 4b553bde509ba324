package models

import "strings"

// ActivityCode identifies one LEAPS stage.
type ActivityCode string

const (
	ActivityLearn   ActivityCode = "LEARN"
	ActivityExplore ActivityCode = "EXPLORE"
	ActivityAmplify ActivityCode = "AMPLIFY"
	ActivityPresent ActivityCode = "PRESENT"
	ActivityShine   ActivityCode = "SHINE"
)

// ActivityCodes lists the stages in program order.
var ActivityCodes = []ActivityCode{
	ActivityLearn,
	ActivityExplore,
	ActivityAmplify,
	ActivityPresent,
	ActivityShine,
}

// ParseActivityCode accepts any casing and surrounding spaces.
func ParseActivityCode(s string) (ActivityCode, bool) {
	code := ActivityCode(strings.ToUpper(strings.TrimSpace(s)))
	for _, c := range ActivityCodes {
		if c == code {
			return code, true
		}
	}
	return "", false
}

// Activity is the static stage catalog row.
type Activity struct {
	Code          ActivityCode `gorm:"primaryKey;type:varchar(16)" json:"code"`
	Name          string       `gorm:"not null" json:"name"`
	DefaultPoints int          `gorm:"not null;default:0" json:"default_points"`
	SortOrder     int          `gorm:"not null;default:0" json:"sort_order"`
}

func (Activity) TableName() string {
	return "activities"
}

// DefaultActivities is seeded at startup (upsert on code).
// AMPLIFY has no flat value; its points are computed from the payload.
var DefaultActivities = []Activity{
	{Code: ActivityLearn, DefaultPoints: 20, SortOrder: 1},
	{Code: ActivityExplore, DefaultPoints: 50, SortOrder: 2},
	{Code: ActivityAmplify, DefaultPoints: 0, SortOrder: 3},
	{Code: ActivityPresent, DefaultPoints: 20, SortOrder: 4},
	{Code: ActivityShine, DefaultPoints: 0, SortOrder: 5},
}
