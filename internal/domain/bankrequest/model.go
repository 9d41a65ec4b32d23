package bankrequest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lifelink/lifelink/internal/domain/donation"
	"github.com/lifelink/lifelink/internal/domain/inventory"
	"github.com/lifelink/lifelink/internal/platform/auth"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusRejected, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// transitions lists the allowed next states of each state.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusCompleted},
}

// CanTransition reports whether a request in s may move to to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the request can be removed from history.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Request asks the blood bank for units of one type. Admin-entered requests
// have no HospitalID.
type Request struct {
	ID            uuid.UUID           `db:"id" json:"id"`
	HospitalID    *uuid.UUID          `db:"hospital_id" json:"hospitalId,omitempty"`
	HospitalName  string              `db:"hospital_name" json:"hospitalName"`
	RequesterRole auth.Role           `db:"requester_role" json:"requesterRole"`
	BloodType     inventory.BloodType `db:"blood_type" json:"bloodType"`
	UnitsNeeded   int                 `db:"units_needed" json:"unitsNeeded"`
	Urgency       donation.Urgency    `db:"urgency" json:"urgency"`
	Status        Status              `db:"status" json:"status"`
	PatientName   *string             `db:"patient_name" json:"patientName,omitempty"`
	RequestDate   time.Time           `db:"request_date" json:"requestDate"`
	ResolvedDate  *time.Time          `db:"resolved_date" json:"resolvedDate,omitempty"`
	ResolvedBy    *uuid.UUID          `db:"resolved_by" json:"resolvedBy,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updatedAt"`

	// Populated by List from the requesting account.
	ContactEmail string `db:"-" json:"contactEmail,omitempty"`
	ContactPhone string `db:"-" json:"contactPhone,omitempty"`
}

// OwnedBy reports whether userID is the requesting account.
func (r *Request) OwnedBy(userID uuid.UUID) bool {
	return r.HospitalID != nil && *r.HospitalID == userID
}

type CreateRequest struct {
	BloodType    string `json:"bloodType"`
	UnitsNeeded  int    `json:"unitsNeeded"`
	Urgency      string `json:"urgency"`
	HospitalName string `json:"hospitalName"`
	PatientName  string `json:"patientName"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type Filter struct {
	HospitalID *uuid.UUID
	Status     Status
}
