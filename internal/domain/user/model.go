package user

import (
	"time"

	"github.com/google/uuid"

	"github.com/lifelink/lifelink/internal/domain/inventory"
	"github.com/lifelink/lifelink/internal/platform/auth"
)

// User is an account of any role. Donor-only and hospital-only fields are
// nil for other roles.
type User struct {
	ID             uuid.UUID            `db:"id" json:"id"`
	Name           string               `db:"name" json:"name"`
	Email          string               `db:"email" json:"email,omitempty"`
	PasswordHash   string               `db:"password_hash" json:"-"`
	Role           auth.Role            `db:"role" json:"role"`
	Phone          string               `db:"phone" json:"phone,omitempty"`
	BloodType      *inventory.BloodType `db:"blood_type" json:"bloodType,omitempty"`
	Address        string               `db:"address" json:"address,omitempty"`
	City           string               `db:"city" json:"city"`
	IsAvailable    bool                 `db:"is_available" json:"isAvailable"`
	LastDonation   *time.Time           `db:"last_donation" json:"lastDonation,omitempty"`
	HospitalName   *string              `db:"hospital_name" json:"hospitalName,omitempty"`
	LicenseNumber  *string              `db:"license_number" json:"licenseNumber,omitempty"`
	ProfilePicture *string              `db:"profile_picture" json:"profilePicture,omitempty"`
	CreatedAt      time.Time            `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time            `db:"updated_at" json:"updatedAt"`
}

// DisplayName is the hospital name for hospital accounts, else the name.
func (u *User) DisplayName() string {
	if u.HospitalName != nil && *u.HospitalName != "" {
		return *u.HospitalName
	}
	return u.Name
}

// Redacted returns a copy without contact details, for recipients browsing
// donors.
func (u *User) Redacted() *User {
	cp := *u
	cp.Email = ""
	cp.Phone = ""
	cp.Address = ""
	return &cp
}

type RegisterRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Phone         string `json:"phone"`
	Role          string `json:"role"`
	BloodType     string `json:"bloodType"`
	Address       string `json:"address"`
	City          string `json:"city"`
	HospitalName  string `json:"hospitalName"`
	LicenseNumber string `json:"licenseNumber"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AuthResult is returned by register, login and refresh.
type AuthResult struct {
	User *User `json:"user,omitempty"`
	*auth.TokenPair
}

// ProfileUpdate carries the editable profile fields. Nil means unchanged.
type ProfileUpdate struct {
	Name          *string `json:"name"`
	Phone         *string `json:"phone"`
	Address       *string `json:"address"`
	City          *string `json:"city"`
	BloodType     *string `json:"bloodType"`
	HospitalName  *string `json:"hospitalName"`
	LicenseNumber *string `json:"licenseNumber"`
}

type AvailabilityRequest struct {
	IsAvailable *bool `json:"isAvailable"`
}

// DonorFilter narrows donor listings. City matches case-insensitively as a
// substring.
type DonorFilter struct {
	BloodType inventory.BloodType
	City      string
	Available *bool
}
