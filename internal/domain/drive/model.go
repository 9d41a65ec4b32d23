package drive

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusUpcoming  Status = "Upcoming"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

type AttendeeStatus string

const (
	AttendeeRegistered AttendeeStatus = "Registered"
	AttendeeAttended   AttendeeStatus = "Attended"
	AttendeeMissed     AttendeeStatus = "Missed"
)

// AllBloodTypes marks a drive open to every type.
const AllBloodTypes = "All"

// DateLayout is the wire format of Drive.Date.
const DateLayout = "2006-01-02"

type Drive struct {
	ID          uuid.UUID `db:"id" json:"id"`
	OrganizerID uuid.UUID `db:"organizer_id" json:"organizerId"`
	Title       string    `db:"title" json:"title"`
	Date        time.Time `db:"date" json:"date"`
	StartTime   string    `db:"start_time" json:"startTime"`
	EndTime     string    `db:"end_time" json:"endTime"`
	Location    string    `db:"location" json:"location"`
	Latitude    *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude   *float64  `db:"longitude" json:"longitude,omitempty"`
	Description string    `db:"description" json:"description"`
	BloodTypes  []string  `db:"blood_types" json:"bloodTypes"`
	Status      Status    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`

	OrganizerName string      `db:"-" json:"organizerName,omitempty"`
	AttendeeCount int         `db:"-" json:"attendeeCount"`
	Attendees     []*Attendee `db:"-" json:"attendees,omitempty"`
}

type Attendee struct {
	DriveID      uuid.UUID      `db:"drive_id" json:"driveId"`
	DonorID      uuid.UUID      `db:"donor_id" json:"donorId"`
	Status       AttendeeStatus `db:"status" json:"status"`
	RegisteredAt time.Time      `db:"registered_at" json:"registeredAt"`

	DonorName  string `db:"-" json:"donorName,omitempty"`
	DonorPhone string `db:"-" json:"donorPhone,omitempty"`
	BloodType  string `db:"-" json:"bloodType,omitempty"`
}

type CreateRequest struct {
	Title       string   `json:"title"`
	Date        string   `json:"date"`
	StartTime   string   `json:"startTime"`
	EndTime     string   `json:"endTime"`
	Location    string   `json:"location"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Description string   `json:"description"`
	BloodTypes  []string `json:"bloodTypes"`
}

type StatusRequest struct {
	Status string `json:"status"`
}
