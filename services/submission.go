package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leaps-tracker/logger"
	"leaps-tracker/models"
	"leaps-tracker/tracking"
)

// MaxAttachmentSize bounds a single evidence upload.
const MaxAttachmentSize = 20 << 20

// AttachmentStore keeps uploaded evidence files. Put returns the public path.
type AttachmentStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

type CreateSubmissionInput struct {
	ActivityCode string          `json:"activityCode" validate:"required"`
	Visibility   string          `json:"visibility" validate:"omitempty,oneof=PUBLIC PRIVATE"`
	Payload      json.RawMessage `json:"payload"`
}

type ReviewInput struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Note     string `json:"note" validate:"omitempty,max=2000"`
}

type PageQuery struct {
	Activity string `query:"activity" validate:"omitempty,max=16"`
	Status   string `query:"status" validate:"omitempty,oneof=PENDING APPROVED REJECTED"`
	Limit    int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset   int    `query:"offset" validate:"min=0"`
}

type Page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// PublicSubmission hides the reviewer and the submitter's contact details.
type PublicSubmission struct {
	ID           string              `json:"id"`
	ActivityCode models.ActivityCode `json:"activityCode"`
	Payload      datatypes.JSON      `json:"payload"`
	Handle       string              `json:"handle"`
	Name         string              `json:"name"`
	School       string              `json:"school,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
}

type ReviewResult struct {
	Submission    *models.Submission `json:"submission"`
	PointsAwarded int                `json:"pointsAwarded"`
	NewBadges     []string           `json:"newBadges"`
}

type SubmissionService struct {
	DB      *gorm.DB
	Badges  *BadgeService
	Store   AttachmentStore
	Tracker Tracker
	Log     logger.Logger
}

func NewSubmissionService(db *gorm.DB, badges *BadgeService, store AttachmentStore, tracker Tracker, log logger.Logger) *SubmissionService {
	if tracker == nil {
		tracker = nopTracker{}
	}
	return &SubmissionService{DB: db, Badges: badges, Store: store, Tracker: tracker, Log: log}
}

// normalizeCreate validates a new submission and fills defaults. It touches no storage.
func normalizeCreate(in CreateSubmissionInput) (models.ActivityCode, models.Visibility, []byte, error) {
	if err := ValidateStruct(in); err != nil {
		return "", "", nil, err
	}
	activity, ok := models.ParseActivityCode(in.ActivityCode)
	if !ok {
		return "", "", nil, NewValidationError("invalid request body", map[string]string{
			"activityCode": fmt.Sprintf("unknown activity %q", in.ActivityCode),
		})
	}
	visibility := models.VisibilityPrivate
	if in.Visibility != "" {
		visibility = models.Visibility(in.Visibility)
	}
	payload := []byte(in.Payload)
	if len(strings.TrimSpace(string(payload))) == 0 || string(payload) == "null" {
		payload = []byte("{}")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return "", "", nil, NewValidationError("invalid request body", map[string]string{
			"payload": "payload must be a JSON object",
		})
	}
	if _, err := SubmissionPoints(activity, payload); err != nil {
		return "", "", nil, err
	}
	return activity, visibility, payload, nil
}

func (s *SubmissionService) Create(ctx context.Context, userID string, in CreateSubmissionInput) (*models.Submission, error) {
	activity, visibility, payload, err := normalizeCreate(in)
	if err != nil {
		return nil, err
	}
	sub := &models.Submission{
		ID:           uuid.NewString(),
		UserID:       userID,
		ActivityCode: activity,
		Status:       models.StatusPending,
		Visibility:   visibility,
		Payload:      datatypes.JSON(payload),
	}
	if err := s.DB.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, errors.Wrap(err, "create submission")
	}
	s.Tracker.Track(tracking.SubmissionCreated(userID, sub.ID, activity))
	return sub, nil
}

func (s *SubmissionService) Mine(ctx context.Context, userID string) ([]models.Submission, error) {
	subs := []models.Submission{}
	err := s.DB.WithContext(ctx).Preload("Attachments").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, errors.Wrap(err, "list own submissions")
}

func (q PageQuery) bounds() (int, int) {
	limit := q.Limit
	if limit == 0 {
		limit = DefaultLeaderboardLimit
	}
	return limit, q.Offset
}

func (q PageQuery) activity() (models.ActivityCode, error) {
	if q.Activity == "" {
		return "", nil
	}
	code, ok := models.ParseActivityCode(q.Activity)
	if !ok {
		return "", NewValidationError("invalid request parameters", map[string]string{
			"activity": fmt.Sprintf("unknown activity %q", q.Activity),
		})
	}
	return code, nil
}

// Public lists approved public submissions, newest first.
func (s *SubmissionService) Public(ctx context.Context, q PageQuery) (*Page[PublicSubmission], error) {
	if err := ValidateStruct(q); err != nil {
		return nil, err
	}
	activity, err := q.activity()
	if err != nil {
		return nil, err
	}
	limit, offset := q.bounds()

	db := s.DB.WithContext(ctx).Model(&models.Submission{}).
		Where("status = ? AND visibility = ?", models.StatusApproved, models.VisibilityPublic)
	if activity != "" {
		db = db.Where("activity_code = ?", activity)
	}
	page := &Page[PublicSubmission]{Items: []PublicSubmission{}, Limit: limit, Offset: offset}
	if err := db.Count(&page.Total).Error; err != nil {
		return nil, errors.Wrap(err, "count public submissions")
	}
	var subs []models.Submission
	if err := db.Preload("User").Order("created_at DESC").Limit(limit).Offset(offset).Find(&subs).Error; err != nil {
		return nil, errors.Wrap(err, "list public submissions")
	}
	for _, sub := range subs {
		ps := PublicSubmission{
			ID:           sub.ID,
			ActivityCode: sub.ActivityCode,
			Payload:      sub.Payload,
			CreatedAt:    sub.CreatedAt,
		}
		if sub.User != nil {
			ps.Handle, ps.Name, ps.School = sub.User.Handle, sub.User.Name, sub.User.School
		}
		page.Items = append(page.Items, ps)
	}
	return page, nil
}

// Queue lists submissions for reviewers. Status defaults to PENDING, oldest first.
func (s *SubmissionService) Queue(ctx context.Context, q PageQuery) (*Page[models.Submission], error) {
	if err := ValidateStruct(q); err != nil {
		return nil, err
	}
	activity, err := q.activity()
	if err != nil {
		return nil, err
	}
	status := models.StatusPending
	if q.Status != "" {
		status = models.SubmissionStatus(q.Status)
	}
	limit, offset := q.bounds()

	db := s.DB.WithContext(ctx).Model(&models.Submission{}).Where("status = ?", status)
	if activity != "" {
		db = db.Where("activity_code = ?", activity)
	}
	page := &Page[models.Submission]{Items: []models.Submission{}, Limit: limit, Offset: offset}
	if err := db.Count(&page.Total).Error; err != nil {
		return nil, errors.Wrap(err, "count review queue")
	}
	if err := db.Preload("User").Preload("Attachments").
		Order("created_at ASC").Limit(limit).Offset(offset).
		Find(&page.Items).Error; err != nil {
		return nil, errors.Wrap(err, "list review queue")
	}
	return page, nil
}

func (s *SubmissionService) Get(ctx context.Context, id string) (*models.Submission, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	var sub models.Submission
	err := s.DB.WithContext(ctx).Preload("User").Preload("Attachments").First(&sub, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &sub, errors.Wrap(err, "get submission")
}

// reviewTransition checks that a PENDING submission may move to decision.
func reviewTransition(sub *models.Submission, reviewerID string, decision models.SubmissionStatus) error {
	if sub.UserID == reviewerID {
		return ErrForbidden
	}
	if sub.Status != models.StatusPending {
		return &ConflictError{Message: fmt.Sprintf("submission is already %s", sub.Status)}
	}
	if decision != models.StatusApproved && decision != models.StatusRejected {
		return NewValidationError("invalid request body", map[string]string{"decision": "decision must be APPROVED or REJECTED"})
	}
	return nil
}

// Review moves a PENDING submission to APPROVED or REJECTED. Approval credits the
// ledger under the submission's event id and evaluates badges, all in one transaction.
func (s *SubmissionService) Review(ctx context.Context, reviewerID, id string, in ReviewInput) (*ReviewResult, error) {
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	decision := models.SubmissionStatus(in.Decision)
	result := &ReviewResult{NewBadges: []string{}}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.Submission
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sub, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "load submission")
		}
		if err := reviewTransition(&sub, reviewerID, decision); err != nil {
			return err
		}

		now := time.Now().UTC()
		sub.Status = decision
		sub.ReviewerID = &reviewerID
		sub.ReviewedAt = &now
		if in.Note != "" {
			note := in.Note
			sub.ReviewNote = &note
		}
		if err := tx.Model(&sub).Select("status", "reviewer_id", "reviewed_at", "review_note").Updates(&sub).Error; err != nil {
			return errors.Wrap(err, "update submission")
		}
		result.Submission = &sub
		if decision != models.StatusApproved {
			return nil
		}

		points, err := SubmissionPoints(sub.ActivityCode, sub.Payload)
		if err != nil {
			return err
		}
		eventID := SubmissionEventID(sub.ID)
		created, err := appendEntry(tx, &models.PointsLedgerEntry{
			UserID:          sub.UserID,
			ActivityCode:    sub.ActivityCode,
			Delta:           points,
			Source:          models.SourceForm,
			ExternalEventID: &eventID,
		})
		if err != nil {
			return err
		}
		if created {
			result.PointsAwarded = points
		}
		awarded, err := s.Badges.AutoAwardBadges(tx, sub.UserID)
		if err != nil {
			return err
		}
		result.NewBadges = append(result.NewBadges, awarded...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sub := result.Submission
	s.Log.Info("📝 Submission reviewed", "submission", sub.ID, "decision", decision, "points", result.PointsAwarded)
	s.Tracker.Track(tracking.SubmissionReviewed(reviewerID, sub.ID, sub.ActivityCode, decision))
	if result.PointsAwarded != 0 {
		s.Tracker.Track(tracking.PointsCredited(sub.UserID, sub.ActivityCode, result.PointsAwarded, models.SourceForm))
	}
	s.Badges.announce(sub.UserID, result.NewBadges)
	return result, nil
}

// AttachmentKey is the object key of an upload: content addressed under its submission.
func AttachmentKey(submissionID, sum, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("submissions/%s/%s%s", submissionID, sum, ext)
}

// AddAttachment stores an evidence file for the owner's submission. Uploading the same
// bytes twice returns the existing attachment.
func (s *SubmissionService) AddAttachment(ctx context.Context, userID, submissionID, filename, contentType string, body []byte) (*models.SubmissionAttachment, error) {
	if s.Store == nil {
		return nil, NewValidationError("attachments are disabled", nil)
	}
	if len(body) == 0 || len(body) > MaxAttachmentSize {
		return nil, NewValidationError("invalid upload", map[string]string{
			"file": fmt.Sprintf("file must be between 1 byte and %d MB", MaxAttachmentSize>>20),
		})
	}
	sub, err := s.Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, ErrForbidden
	}

	digest := sha256.Sum256(body)
	sum := hex.EncodeToString(digest[:])
	for _, a := range sub.Attachments {
		if a.SHA256 == sum {
			return &a, nil
		}
	}

	url, err := s.Store.Put(ctx, AttachmentKey(sub.ID, sum, filename), body, contentType)
	if err != nil {
		return nil, errors.Wrap(err, "store attachment")
	}
	att := &models.SubmissionAttachment{
		ID:           uuid.NewString(),
		SubmissionID: sub.ID,
		Path:         url,
		SHA256:       sum,
		Size:         int64(len(body)),
		ContentType:  contentType,
	}
	db := s.DB.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(att)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "save attachment")
	}
	if res.RowsAffected == 0 {
		// a concurrent upload of the same bytes won
		var existing models.SubmissionAttachment
		if err := db.First(&existing, "submission_id = ? AND sha256 = ?", sub.ID, sum).Error; err != nil {
			return nil, errors.Wrap(err, "load attachment")
		}
		return &existing, nil
	}
	return att, nil
}
