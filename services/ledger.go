package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leaps-tracker/logger"
	"leaps-tracker/models"
	"leaps-tracker/tracking"
)

const recentEntriesLimit = 20

// CreditInput is a manual adjustment or a webhook credit.
type CreditInput struct {
	UserID          string `json:"userId" validate:"required,uuid"`
	ActivityCode    string `json:"activityCode" validate:"required"`
	Delta           int    `json:"delta" validate:"required,min=-10000,max=10000"`
	ExternalEventID string `json:"externalEventId" validate:"omitempty,max=128"`
	Note            string `json:"note" validate:"omitempty,max=500"`
}

type CreditResult struct {
	Entry     *models.PointsLedgerEntry `json:"entry,omitempty"`
	Duplicate bool                      `json:"duplicate"`
	Balance   int64                     `json:"balance"`
	NewBadges []string                  `json:"newBadges"`
}

type ActivityBalance struct {
	Activity models.ActivityCode `json:"activity"`
	Points   int64               `json:"points"`
}

type UserPoints struct {
	Balance    int64                      `json:"balance"`
	ByActivity []ActivityBalance          `json:"byActivity"`
	Recent     []models.PointsLedgerEntry `json:"recent"`
}

// LedgerService appends point deltas. Entries are never updated or deleted.
type LedgerService struct {
	DB      *gorm.DB
	Badges  *BadgeService
	Tracker Tracker
	Log     logger.Logger
}

func NewLedgerService(db *gorm.DB, badges *BadgeService, tracker Tracker, log logger.Logger) *LedgerService {
	if tracker == nil {
		tracker = nopTracker{}
	}
	return &LedgerService{DB: db, Badges: badges, Tracker: tracker, Log: log}
}

const submissionEventPrefix = "submission:"

// SubmissionEventID keys the approval credit of a submission.
func SubmissionEventID(submissionID string) string {
	return submissionEventPrefix + submissionID
}

// appendEntry inserts e unless (user, external event) already exists. created is false
// for a duplicate.
func appendEntry(tx *gorm.DB, e *models.PointsLedgerEntry) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(e)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "append ledger entry")
	}
	return res.RowsAffected > 0, nil
}

func balance(tx *gorm.DB, userID string) (int64, error) {
	var total int64
	err := tx.Raw("SELECT COALESCE(SUM(delta), 0) FROM points_ledger WHERE user_id = ?", userID).Scan(&total).Error
	return total, errors.Wrap(err, "ledger balance")
}

// Credit validates in, appends it and evaluates badges in one transaction.
// A repeated external event id returns Duplicate with the current balance.
func (s *LedgerService) Credit(ctx context.Context, in CreditInput, source models.PointsSource) (*CreditResult, error) {
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}
	activity, ok := models.ParseActivityCode(in.ActivityCode)
	if !ok {
		return nil, NewValidationError("invalid request body", map[string]string{
			"activityCode": fmt.Sprintf("unknown activity %q", in.ActivityCode),
		})
	}
	if source == models.SourceWebhook && in.ExternalEventID == "" {
		return nil, NewValidationError("invalid request body", map[string]string{
			"externalEventId": "externalEventId is required for webhook credits",
		})
	}

	entry := &models.PointsLedgerEntry{
		UserID:       in.UserID,
		ActivityCode: activity,
		Delta:        in.Delta,
		Source:       source,
		Note:         in.Note,
	}
	if in.ExternalEventID != "" {
		id := in.ExternalEventID
		entry.ExternalEventID = &id
	}

	result := &CreditResult{NewBadges: []string{}}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("id = ?", in.UserID).Count(&n).Error; err != nil {
			return errors.Wrap(err, "check user")
		}
		if n == 0 {
			return ErrNotFound
		}
		created, err := appendEntry(tx, entry)
		if err != nil {
			return err
		}
		result.Duplicate = !created
		if created {
			result.Entry = entry
			awarded, err := s.Badges.AutoAwardBadges(tx, in.UserID)
			if err != nil {
				return err
			}
			result.NewBadges = append(result.NewBadges, awarded...)
		}
		result.Balance, err = balance(tx, in.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Duplicate {
		s.Log.Info("duplicate ledger event ignored", "user", in.UserID, "event", in.ExternalEventID)
		return result, nil
	}
	s.Tracker.Track(tracking.PointsCredited(in.UserID, activity, in.Delta, source))
	s.Badges.announce(in.UserID, result.NewBadges)
	return result, nil
}

// Points returns a user's balance, per-activity totals and latest entries.
func (s *LedgerService) Points(ctx context.Context, userID string) (*UserPoints, error) {
	db := s.DB.WithContext(ctx)
	up := &UserPoints{ByActivity: []ActivityBalance{}, Recent: []models.PointsLedgerEntry{}}

	var err error
	if up.Balance, err = balance(db, userID); err != nil {
		return nil, err
	}
	var rows []struct {
		ActivityCode models.ActivityCode
		Points       int64
	}
	if err := db.Raw(`SELECT activity_code, SUM(delta)::bigint AS points FROM points_ledger
WHERE user_id = ? GROUP BY activity_code`, userID).Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "ledger by activity")
	}
	byCode := map[models.ActivityCode]int64{}
	for _, r := range rows {
		byCode[r.ActivityCode] = r.Points
	}
	for _, c := range models.ActivityCodes {
		if pts, ok := byCode[c]; ok {
			up.ByActivity = append(up.ByActivity, ActivityBalance{Activity: c, Points: pts})
		}
	}
	if err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(recentEntriesLimit).
		Find(&up.Recent).Error; err != nil {
		return nil, errors.Wrap(err, "recent ledger entries")
	}
	return up, nil
}
