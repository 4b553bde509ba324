package services

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leaps-tracker/models"
)

// Casers are stateful, so each call builds its own.
func title(s string) string {
	return cases.Title(language.English).String(s)
}

// ActivityName turns a stage code into its display name, e.g. AMPLIFY → Amplify.
func ActivityName(code models.ActivityCode) string {
	return title(strings.ToLower(string(code)))
}

// SchoolName renders a lower-cased school group key for display.
func SchoolName(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "Unknown"
	}
	return title(key)
}

type CatalogService struct {
	DB *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{DB: db}
}

// Seed upserts the activity and badge catalogs.
func (s *CatalogService) Seed(ctx context.Context) error {
	activities := make([]models.Activity, len(models.DefaultActivities))
	for i, a := range models.DefaultActivities {
		a.Name = ActivityName(a.Code)
		activities[i] = a
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "default_points", "sort_order"}),
		}).Create(&activities).Error; err != nil {
			return errors.Wrap(err, "seed activities")
		}
		badges := append([]models.Badge(nil), models.BadgeCatalog...)
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "description", "criteria"}),
		}).Create(&badges).Error; err != nil {
			return errors.Wrap(err, "seed badges")
		}
		return nil
	})
}

func (s *CatalogService) Activities(ctx context.Context) ([]models.Activity, error) {
	activities := []models.Activity{}
	err := s.DB.WithContext(ctx).Order("sort_order ASC").Find(&activities).Error
	return activities, errors.Wrap(err, "list activities")
}
