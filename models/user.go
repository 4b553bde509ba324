package models

// Role is a caller's permission tier. Higher tiers include the lower ones.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleReviewer    Role = "reviewer"
	RoleAdmin       Role = "admin"
	RoleSuperadmin  Role = "superadmin"
)

var roleLevel = map[Role]int{
	RoleParticipant: 1,
	RoleReviewer:    2,
	RoleAdmin:       3,
	RoleSuperadmin:  4,
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleLevel[r]
	return ok
}

// AtLeast reports whether r grants everything min grants.
func (r Role) AtLeast(min Role) bool {
	return roleLevel[r] >= roleLevel[min] && roleLevel[r] > 0
}

// User is an educator taking part in the program (or a staff member).
type User struct {
	ID                string  `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Handle            string  `gorm:"uniqueIndex;not null" json:"handle"`
	Name              string  `gorm:"not null" json:"name"`
	Email             string  `gorm:"uniqueIndex;not null" json:"email"`
	Role              Role    `gorm:"type:varchar(16);not null;default:'participant';index" json:"role"`
	School            string  `gorm:"index" json:"school,omitempty"`
	Cohort            string  `gorm:"index" json:"cohort,omitempty"`
	ExternalContactID *string `gorm:"uniqueIndex" json:"external_contact_id,omitempty"`

	Timestamps
}

func (User) TableName() string {
	return "users"
}
