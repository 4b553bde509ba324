package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leaps-tracker/models"
)

type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

type SearchQuery struct {
	Q     string `query:"q" validate:"omitempty,max=100"`
	Limit int    `query:"limit" validate:"omitempty,min=1,max=100"`
}

// UserSummary is the admin search row.
type UserSummary struct {
	ID     string      `json:"id"`
	Handle string      `json:"handle"`
	Name   string      `json:"name"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
	School string      `json:"school,omitempty"`
	Cohort string      `json:"cohort,omitempty"`
}

// Profile is a user as delivered by the external profile service.
type Profile struct {
	ExternalID string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	School     string `json:"school"`
	Cohort     string `json:"cohort"`
}

// Search matches handle, name or email case-insensitively.
func (s *UserService) Search(ctx context.Context, q SearchQuery) ([]UserSummary, error) {
	if err := ValidateStruct(q); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit == 0 {
		limit = 50
	}
	db := s.DB.WithContext(ctx).Model(&models.User{}).Order("handle ASC").Limit(limit)
	if term := strings.TrimSpace(q.Q); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		db = db.Where("LOWER(handle) LIKE ? OR LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like, like)
	}
	var users []models.User
	if err := db.Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "search users")
	}
	res := make([]UserSummary, len(users))
	for i, u := range users {
		res[i] = UserSummary{
			ID:     u.ID,
			Handle: u.Handle,
			Name:   u.Name,
			Email:  u.Email,
			Role:   u.Role,
			School: u.School,
			Cohort: u.Cohort,
		}
	}
	return res, nil
}

// Role returns the stored role of a user, or ErrNotFound.
func (s *UserService) Role(ctx context.Context, userID string) (models.Role, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return "", ErrNotFound
	}
	var u models.User
	err := s.DB.WithContext(ctx).Select("role").First(&u, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "load role")
	}
	return u.Role, nil
}

type RoleInput struct {
	Role string `json:"role" validate:"required,oneof=participant reviewer admin superadmin"`
}

func (s *UserService) SetRole(ctx context.Context, userID string, in RoleInput) (*UserSummary, error) {
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, ErrNotFound
	}
	res := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("role", in.Role)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "set role")
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	var u models.User
	if err := s.DB.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		return nil, errors.Wrap(err, "reload user")
	}
	return &UserSummary{ID: u.ID, Handle: u.Handle, Name: u.Name, Email: u.Email, Role: u.Role, School: u.School, Cohort: u.Cohort}, nil
}

// MakeHandle slugs the display name, falling back to the email's local part.
func MakeHandle(name, email string) string {
	if h := slug.Make(name); h != "" {
		return h
	}
	local, _, _ := strings.Cut(email, "@")
	if h := slug.Make(local); h != "" {
		return h
	}
	return "user"
}

// UpsertProfiles inserts new users and refreshes the profile fields of known ones,
// keyed by email. Handles and roles of existing users are left alone.
func (s *UserService) UpsertProfiles(ctx context.Context, profiles []Profile) (int, error) {
	n := 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range profiles {
			email := strings.ToLower(strings.TrimSpace(p.Email))
			if email == "" {
				continue
			}
			handle, err := uniqueHandle(tx, MakeHandle(p.Name, email), email)
			if err != nil {
				return err
			}
			u := models.User{
				ID:     uuid.NewString(),
				Handle: handle,
				Name:   strings.TrimSpace(p.Name),
				Email:  email,
				Role:   models.RoleParticipant,
				School: strings.TrimSpace(p.School),
				Cohort: strings.TrimSpace(p.Cohort),
			}
			if p.ExternalID != "" {
				ext := p.ExternalID
				u.ExternalContactID = &ext
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "email"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "school", "cohort", "external_contact_id", "updated_at"}),
			}).Create(&u).Error; err != nil {
				return errors.Wrapf(err, "upsert user %s", email)
			}
			n++
		}
		return nil
	})
	return n, err
}

// uniqueHandle returns base, or base with a short suffix when another user holds it.
func uniqueHandle(tx *gorm.DB, base, email string) (string, error) {
	var owner models.User
	err := tx.Select("email").Where("handle = ?", base).Limit(1).Find(&owner).Error
	if err != nil {
		return "", errors.Wrap(err, "check handle")
	}
	if owner.Email == "" || owner.Email == email {
		return base, nil
	}
	return base + "-" + uuid.NewString()[:6], nil
}
