package orgs

import (
	"time"

	"github.com/r3aper2020/Gamut-MGMT/pkg/rbac"
)

// GeneralTeamName is the name of the default team created with every organization
const GeneralTeamName = "General"

// User is the document record kept for every identity
type User struct {
	ID             string    `json:"uid"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"displayName,omitempty"`
	Role           rbac.Role `json:"role"`
	OrganizationID string    `json:"organizationId,omitempty"`
	TeamID         string    `json:"teamId,omitempty"`
	JobTitle       string    `json:"jobTitle,omitempty"`
	PhoneNumber    string    `json:"phoneNumber,omitempty"`
	CreatedBy      string    `json:"createdBy,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Subject returns the authorization view of the user
func (u *User) Subject() rbac.Subject {
	return rbac.Subject{
		ID:             u.ID,
		Email:          u.Email,
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
		TeamID:         u.TeamID,
	}
}

// OrgSettings holds per-organization preferences
type OrgSettings struct {
	Timezone string `json:"timezone"`
	Currency string `json:"currency"`
}

// Organization is the tenant boundary
type Organization struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Address   string      `json:"address,omitempty"`
	Industry  string      `json:"industry,omitempty"`
	Size      string      `json:"size,omitempty"`
	Settings  OrgSettings `json:"settings"`
	OwnerID   string      `json:"ownerId"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Team groups users inside an organization
type Team struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Specialty      string    `json:"specialty,omitempty"`
	Description    string    `json:"description,omitempty"`
	OrganizationID string    `json:"organizationId"`
	MemberCount    int64     `json:"memberCount"`
	IsDefault      bool      `json:"isDefault"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// SignupRequest is a public self-registration
type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// CreateUserRequest provisions a user inside the caller's organization
type CreateUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	JobTitle    string `json:"jobTitle,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	TeamID      string `json:"teamId,omitempty"`
}

// ProfileUpdate changes the caller's own contact details. Empty fields are left unchanged.
type ProfileUpdate struct {
	JobTitle    string `json:"jobTitle,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// UserUpdate is an administrative change to another user. Nil fields are left unchanged.
type UserUpdate struct {
	Role           *string `json:"role,omitempty"`
	OrganizationID *string `json:"organizationId,omitempty"`
	TeamID         *string `json:"teamId,omitempty"`
	JobTitle       *string `json:"jobTitle,omitempty"`
	PhoneNumber    *string `json:"phoneNumber,omitempty"`
}

// IsEmpty reports whether the update changes nothing
func (u UserUpdate) IsEmpty() bool {
	return u.Role == nil && u.OrganizationID == nil && u.TeamID == nil && u.JobTitle == nil && u.PhoneNumber == nil
}

// CreateOrganizationRequest founds an organization for the calling owner
type CreateOrganizationRequest struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	Currency string `json:"currency"`
	Address  string `json:"address,omitempty"`
	Industry string `json:"industry,omitempty"`
	Size     string `json:"size,omitempty"`
}

// UpdateOrganizationRequest changes organization details. Nil fields are left unchanged.
type UpdateOrganizationRequest struct {
	Name     *string `json:"name,omitempty"`
	Address  *string `json:"address,omitempty"`
	Industry *string `json:"industry,omitempty"`
	Size     *string `json:"size,omitempty"`
	Timezone *string `json:"timezone,omitempty"`
	Currency *string `json:"currency,omitempty"`
}

// TeamRequest creates a team
type TeamRequest struct {
	Name        string `json:"name"`
	Specialty   string `json:"specialty,omitempty"`
	Description string `json:"description,omitempty"`
}

// TeamUpdate changes team details. Nil fields are left unchanged.
type TeamUpdate struct {
	Name        *string `json:"name,omitempty"`
	Specialty   *string `json:"specialty,omitempty"`
	Description *string `json:"description,omitempty"`
}

// AdminActionResult echoes the caller of the admin probe endpoint
type AdminActionResult struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	Email   string `json:"email,omitempty"`
}

// ReconcileReport summarizes one reconciliation pass
type ReconcileReport struct {
	UsersScanned   int           `json:"usersScanned"`
	OrphansRemoved int           `json:"orphansRemoved"`
	TeamsScanned   int           `json:"teamsScanned"`
	CountersFixed  int           `json:"countersFixed"`
	TeamsDeferred  int           `json:"teamsDeferred"`
	Duration       time.Duration `json:"duration"`
	DryRun         bool          `json:"dryRun"`
	OrphanUserIDs  []string      `json:"orphanUserIds,omitempty"`
	// OrphanIdentityIDs lists identities removed for lacking a user record
	OrphanIdentityIDs []string         `json:"orphanIdentityIds,omitempty"`
	CorrectedCounts   map[string]int64 `json:"correctedCounts,omitempty"`
}
