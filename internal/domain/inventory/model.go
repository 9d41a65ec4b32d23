package inventory

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BloodType is an ABO/Rh group.
type BloodType string

const (
	APos  BloodType = "A+"
	ANeg  BloodType = "A-"
	BPos  BloodType = "B+"
	BNeg  BloodType = "B-"
	OPos  BloodType = "O+"
	ONeg  BloodType = "O-"
	ABPos BloodType = "AB+"
	ABNeg BloodType = "AB-"
)

// BloodTypes lists every blood type in canonical order.
var BloodTypes = []BloodType{APos, ANeg, BPos, BNeg, OPos, ONeg, ABPos, ABNeg}

func (b BloodType) Valid() bool {
	for _, t := range BloodTypes {
		if b == t {
			return true
		}
	}
	return false
}

// ParseBloodType validates s.
func ParseBloodType(s string) (BloodType, error) {
	bt := BloodType(s)
	if !bt.Valid() {
		return "", fmt.Errorf("invalid blood type %q", s)
	}
	return bt, nil
}

// UnitStatus is the lifecycle state of one blood unit.
type UnitStatus string

const (
	StatusAvailable UnitStatus = "Available"
	StatusReserved  UnitStatus = "Reserved"
	StatusUsed      UnitStatus = "Used"
	StatusExpired   UnitStatus = "Expired"
)

func (s UnitStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusReserved, StatusUsed, StatusExpired:
		return true
	}
	return false
}

// ShelfLifeDays is how long a unit of whole blood stays usable.
const ShelfLifeDays = 42

// ExpiryFor returns the expiry date of a unit donated at donated.
func ExpiryFor(donated time.Time) time.Time {
	return donated.AddDate(0, 0, ShelfLifeDays)
}

// BloodUnit is one physical bag of blood. A unit has either a registered
// donor or a manual donor name and phone.
type BloodUnit struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	BloodType        BloodType  `db:"blood_type" json:"bloodType"`
	DonorID          *uuid.UUID `db:"donor_id" json:"donorId,omitempty"`
	ManualDonorName  *string    `db:"manual_donor_name" json:"manualDonorName,omitempty"`
	ManualDonorPhone *string    `db:"manual_donor_phone" json:"manualDonorPhone,omitempty"`
	Status           UnitStatus `db:"status" json:"status"`
	HospitalID       *uuid.UUID `db:"hospital_id" json:"hospitalId,omitempty"`
	DonationDate     time.Time  `db:"donation_date" json:"donationDate"`
	ExpiryDate       time.Time  `db:"expiry_date" json:"expiryDate"`
	UpdatedBy        *uuid.UUID `db:"updated_by" json:"updatedBy,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

// StockEntry is the number of Available units of one type.
type StockEntry struct {
	BloodType BloodType `json:"bloodType"`
	Units     int       `json:"units"`
}

// Action is a stock mutation verb.
type Action string

const (
	ActionAdd      Action = "add"
	ActionSubtract Action = "subtract"
	ActionSet      Action = "set"
)

// AdjustRequest is the body of PUT /blood-bank/stock.
type AdjustRequest struct {
	BloodType        string     `json:"bloodType"`
	Quantity         Quantity   `json:"quantity"`
	Action           Action     `json:"action"`
	DonorID          string     `json:"donorId,omitempty"`
	ManualDonorName  string     `json:"manualDonorName,omitempty"`
	ManualDonorPhone string     `json:"manualDonorPhone,omitempty"`
	DonationDate     *time.Time `json:"donationDate,omitempty"`
}

// Quantity is a unit count that also accepts a quoted number, as sent by
// form inputs.
type Quantity int

func (q *Quantity) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*q = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("quantity must be a whole number")
	}
	*q = Quantity(n)
	return nil
}

// UnitFilter narrows ListUnits. Empty fields match everything.
type UnitFilter struct {
	BloodType BloodType
	Status    UnitStatus
}

// DonorUnit is an Available unit together with who donated it.
type DonorUnit struct {
	UnitID       uuid.UUID  `json:"unitId"`
	BloodType    BloodType  `json:"bloodType"`
	DonorID      *uuid.UUID `json:"donorId,omitempty"`
	DonorName    string     `json:"donorName"`
	DonorPhone   string     `json:"donorPhone"`
	DonorEmail   string     `json:"donorEmail,omitempty"`
	City         string     `json:"city,omitempty"`
	Manual       bool       `json:"manual"`
	DonationDate time.Time  `json:"donationDate"`
	ExpiryDate   time.Time  `json:"expiryDate"`
}
