package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leaps-tracker/logger"
	"leaps-tracker/models"
	"leaps-tracker/tracking"
)

// BadgeProgress is what badge criteria are evaluated against.
type BadgeProgress struct {
	TotalPoints         int64
	ApprovedSubmissions int64
	ApprovedByActivity  map[models.ActivityCode]int64
}

func (p BadgeProgress) DistinctActivities() int64 {
	var n int64
	for _, c := range p.ApprovedByActivity {
		if c > 0 {
			n++
		}
	}
	return n
}

type BadgeService struct {
	DB      *gorm.DB
	Log     logger.Logger
	Tracker Tracker
}

func NewBadgeService(db *gorm.DB, log logger.Logger, tracker Tracker) *BadgeService {
	if tracker == nil {
		tracker = nopTracker{}
	}
	return &BadgeService{DB: db, Log: log, Tracker: tracker}
}

// Progress loads the counters badge criteria refer to.
func (s *BadgeService) Progress(tx *gorm.DB, userID string) (BadgeProgress, error) {
	p := BadgeProgress{ApprovedByActivity: map[models.ActivityCode]int64{}}
	if err := tx.Raw("SELECT COALESCE(SUM(delta), 0) FROM points_ledger WHERE user_id = ?", userID).
		Scan(&p.TotalPoints).Error; err != nil {
		return p, errors.Wrap(err, "badge progress: points")
	}
	var rows []struct {
		ActivityCode models.ActivityCode
		Count        int64
	}
	if err := tx.Raw(`SELECT activity_code, COUNT(*) AS count FROM submissions
WHERE user_id = ? AND status = ? GROUP BY activity_code`, userID, models.StatusApproved).
		Scan(&rows).Error; err != nil {
		return p, errors.Wrap(err, "badge progress: submissions")
	}
	for _, r := range rows {
		p.ApprovedByActivity[r.ActivityCode] = r.Count
		p.ApprovedSubmissions += r.Count
	}
	return p, nil
}

// AutoAwardBadges checks every catalog badge for a user after a credit and grants the
// ones newly met. Runs inside the caller's transaction.
func (s *BadgeService) AutoAwardBadges(tx *gorm.DB, userID string) ([]string, error) {
	prog, err := s.Progress(tx, userID)
	if err != nil {
		return nil, err
	}
	var catalog []models.Badge
	if err := tx.Find(&catalog).Error; err != nil {
		return nil, errors.Wrap(err, "load badge catalog")
	}

	var awarded []string
	for _, badge := range catalog {
		if !meetsThreshold(prog, badge.Criteria) {
			continue
		}
		earned := models.EarnedBadge{ID: uuid.NewString(), UserID: userID, BadgeCode: badge.Code}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&earned)
		if res.Error != nil {
			return nil, errors.Wrapf(res.Error, "award badge %s", badge.Code)
		}
		if res.RowsAffected > 0 {
			awarded = append(awarded, badge.Code)
			s.Log.Info("🎖️ Badge awarded", "badge", badge.Code, "user", userID)
		}
	}
	return awarded, nil
}

// announce sends one event per new badge. Call after the transaction commits.
func (s *BadgeService) announce(userID string, codes []string) {
	for _, code := range codes {
		s.Tracker.Track(tracking.BadgeEarned(userID, code))
	}
}

// meetsThreshold requires every criterion. Unknown keys and empty criteria never match.
func meetsThreshold(p BadgeProgress, req map[string]int64) bool {
	if len(req) == 0 {
		return false
	}
	for key, required := range req {
		switch {
		case key == "total_points":
			if p.TotalPoints < required {
				return false
			}
		case key == "approved_submissions":
			if p.ApprovedSubmissions < required {
				return false
			}
		case key == "distinct_activities":
			if p.DistinctActivities() < required {
				return false
			}
		case strings.HasPrefix(key, "activity:"):
			code, ok := models.ParseActivityCode(strings.TrimPrefix(key, "activity:"))
			if !ok || p.ApprovedByActivity[code] < required {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Earned lists a user's badges, newest first.
func (s *BadgeService) Earned(ctx context.Context, userID string) ([]models.EarnedBadge, error) {
	earned := []models.EarnedBadge{}
	err := s.DB.WithContext(ctx).Preload("Badge").
		Where("user_id = ?", userID).
		Order("earned_at DESC").
		Find(&earned).Error
	return earned, errors.Wrap(err, "list earned badges")
}
