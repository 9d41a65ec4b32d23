package donation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lifelink/lifelink/internal/domain/inventory"
	"github.com/lifelink/lifelink/internal/platform/auth"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// ParseStatus accepts "declined" as an alias of rejected and ignores case.
func ParseStatus(s string) (Status, error) {
	switch st := Status(lower(s)); st {
	case StatusPending, StatusAccepted, StatusRejected, StatusCompleted:
		return st, nil
	case "declined":
		return StatusRejected, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// Terminal reports whether a request in s can be deleted from history.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Urgency is shared by donation and bank requests.
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// ParseUrgency defaults an empty value to normal.
func ParseUrgency(s string) (Urgency, error) {
	switch u := Urgency(lower(s)); u {
	case "":
		return UrgencyNormal, nil
	case UrgencyNormal, UrgencyUrgent, UrgencyCritical:
		return u, nil
	}
	return "", fmt.Errorf("invalid urgency %q", s)
}

type Type string

const (
	TypeIndividual Type = "Individual"
	TypeBroadcast  Type = "Broadcast"
	TypeDrive      Type = "Drive"
)

// RequesterKind says which kind of account issued a request.
type RequesterKind string

const (
	RequesterRecipient RequesterKind = "recipient"
	RequesterHospital  RequesterKind = "hospital"
	RequesterAdmin     RequesterKind = "admin"
)

// Requester is the account that issued a request.
type Requester struct {
	Kind RequesterKind `json:"kind"`
	ID   uuid.UUID     `json:"id"`
}

// RequesterFor maps an actor to a requester. Only recipients and hospitals
// issue direct requests; admin-originated rows are built by NotifyDonor and
// BulkRequest.
func RequesterFor(id auth.Identity) (Requester, bool) {
	switch id.Role {
	case auth.RoleRecipient:
		return Requester{Kind: RequesterRecipient, ID: id.UserID}, true
	case auth.RoleHospital:
		return Requester{Kind: RequesterHospital, ID: id.UserID}, true
	}
	return Requester{}, false
}

// Request is a direct ask to one donor.
type Request struct {
	ID                uuid.UUID           `db:"id" json:"id"`
	DonorID           uuid.UUID           `db:"donor_id" json:"donorId"`
	RequestedBy       Requester           `db:"-" json:"requestedBy"`
	BloodType         inventory.BloodType `db:"blood_type" json:"bloodType"`
	UnitsNeeded       int                 `db:"units_needed" json:"unitsNeeded"`
	Urgency           Urgency             `db:"urgency" json:"urgency"`
	PatientName       *string             `db:"patient_name" json:"patientName,omitempty"`
	ContactPhone      *string             `db:"contact_phone" json:"contactPhone,omitempty"`
	Message           *string             `db:"message" json:"message,omitempty"`
	Type              Type                `db:"type" json:"type"`
	Status            Status              `db:"status" json:"status"`
	AcceptedAt        *time.Time          `db:"accepted_at" json:"acceptedAt,omitempty"`
	CompletedAt       *time.Time          `db:"completed_at" json:"completedAt,omitempty"`
	ScheduledDate     *time.Time          `db:"scheduled_date" json:"scheduledDate,omitempty"`
	Location          *string             `db:"location" json:"location,omitempty"`
	StartTime         *string             `db:"start_time" json:"startTime,omitempty"`
	EndTime           *string             `db:"end_time" json:"endTime,omitempty"`
	Latitude          *float64            `db:"latitude" json:"latitude,omitempty"`
	Longitude         *float64            `db:"longitude" json:"longitude,omitempty"`
	HospitalRequestID *uuid.UUID          `db:"hospital_request_id" json:"hospitalRequestId,omitempty"`
	CreatedAt         time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time           `db:"updated_at" json:"updatedAt"`

	// Populated by list queries.
	DonorName     string `db:"-" json:"donorName,omitempty"`
	DonorPhone    string `db:"-" json:"donorPhone,omitempty"`
	RequesterName string `db:"-" json:"requesterName,omitempty"`
}

// IsParticipant reports whether userID is the donor or the requester.
func (r *Request) IsParticipant(userID uuid.UUID) bool {
	return r.DonorID == userID || r.RequestedBy.ID == userID
}

// NewCredit builds the completed record that credits a donor whose unit was
// issued against a bank request.
func NewCredit(donorID uuid.UUID, bt inventory.BloodType, adminID, hospitalRequestID uuid.UUID, hospitalName string, at time.Time) *Request {
	msg := "LifeLink: Your donation helped " + hospitalName
	hr := hospitalRequestID
	done := at
	return &Request{
		DonorID:           donorID,
		RequestedBy:       Requester{Kind: RequesterAdmin, ID: adminID},
		BloodType:         bt,
		UnitsNeeded:       1,
		Urgency:           UrgencyNormal,
		Message:           &msg,
		Type:              TypeIndividual,
		Status:            StatusCompleted,
		CompletedAt:       &done,
		HospitalRequestID: &hr,
	}
}

type CreateRequest struct {
	DonorID      uuid.UUID `json:"donorId"`
	BloodType    string    `json:"bloodType"`
	UnitsNeeded  int       `json:"unitsNeeded"`
	Urgency      string    `json:"urgency"`
	PatientName  string    `json:"patientName"`
	ContactPhone string    `json:"contactPhone"`
	Message      string    `json:"message"`
}

type EmergencyRequest struct {
	BloodType    string `json:"bloodType"`
	City         string `json:"city"`
	Message      string `json:"message"`
	PatientName  string `json:"patientName"`
	ContactPhone string `json:"contactPhone"`
}

type NotifyDonorRequest struct {
	DonorID   uuid.UUID `json:"donorId"`
	BloodType string    `json:"bloodType"`
	Message   string    `json:"message"`
}

// BloodTypeAll targets every donor in a bulk request.
const BloodTypeAll = "All"

type BulkRequest struct {
	BloodType     string     `json:"bloodType"`
	Type          Type       `json:"type"`
	Message       string     `json:"message"`
	ScheduledDate *time.Time `json:"scheduledDate,omitempty"`
	Location      string     `json:"location"`
	StartTime     string     `json:"startTime"`
	EndTime       string     `json:"endTime"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	DonorID     *uuid.UUID
	RequesterID *uuid.UUID
	Status      Status
	// ByUrgency sorts critical first, then newest.
	ByUrgency bool
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
