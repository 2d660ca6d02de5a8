package model

import (
	"time"

	"github.com/google/uuid"
)

// ShelfLife is how long a collected unit stays usable. Expiry is computed once
// at collection time and never recomputed.
const ShelfLife = 42 * 24 * time.Hour

type BloodGroup string

const (
	BloodGroupAPos  BloodGroup = "A+"
	BloodGroupANeg  BloodGroup = "A-"
	BloodGroupBPos  BloodGroup = "B+"
	BloodGroupBNeg  BloodGroup = "B-"
	BloodGroupABPos BloodGroup = "AB+"
	BloodGroupABNeg BloodGroup = "AB-"
	BloodGroupOPos  BloodGroup = "O+"
	BloodGroupONeg  BloodGroup = "O-"
)

// BloodGroups lists all eight ABO/Rh values, in the order reports use.
var BloodGroups = []BloodGroup{
	BloodGroupAPos, BloodGroupANeg,
	BloodGroupBPos, BloodGroupBNeg,
	BloodGroupABPos, BloodGroupABNeg,
	BloodGroupOPos, BloodGroupONeg,
}

func (g BloodGroup) Valid() bool {
	switch g {
	case BloodGroupAPos, BloodGroupANeg, BloodGroupBPos, BloodGroupBNeg,
		BloodGroupABPos, BloodGroupABNeg, BloodGroupOPos, BloodGroupONeg:
		return true
	}
	return false
}

type UnitStatus string

const (
	UnitStatusCollected UnitStatus = "collected"
	UnitStatusTested    UnitStatus = "tested"
	UnitStatusAvailable UnitStatus = "available"
	UnitStatusReserved  UnitStatus = "reserved"
	UnitStatusIssued    UnitStatus = "issued"
	UnitStatusExpired   UnitStatus = "expired"
	UnitStatusDisposed  UnitStatus = "disposed"
)

type Assay string

const (
	AssayHIV      Assay = "hiv"
	AssayHBV      Assay = "hbv"
	AssayHCV      Assay = "hcv"
	AssaySyphilis Assay = "syphilis"
)

var Assays = []Assay{AssayHIV, AssayHBV, AssayHCV, AssaySyphilis}

func (a Assay) Valid() bool {
	switch a {
	case AssayHIV, AssayHBV, AssayHCV, AssaySyphilis:
		return true
	}
	return false
}

type AssayResult string

const (
	AssayResultPending  AssayResult = "pending"
	AssayResultNegative AssayResult = "negative"
	AssayResultPositive AssayResult = "positive"
)

// BloodUnit is one physical bag, tracked from collection to issue or disposal.
// Terminal records persist for audit; units are never deleted.
type BloodUnit struct {
	ID             uuid.UUID             `json:"id"`
	DonorID        uuid.UUID             `json:"donor_id"`
	HospitalID     uuid.UUID             `json:"hospital_id"`
	BloodGroup     BloodGroup            `json:"blood_group"`
	Status         UnitStatus            `json:"status"`
	CollectionDate time.Time             `json:"collection_date"`
	ExpiryDate     time.Time             `json:"expiry_date"`
	TestResults    map[Assay]AssayResult `json:"test_results"`
	IssuedTo       *uuid.UUID            `json:"issued_to,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// AllAssaysResolved reports whether every assay has a non-pending result.
func (u *BloodUnit) AllAssaysResolved() bool {
	for _, a := range Assays {
		if u.TestResults[a] == "" || u.TestResults[a] == AssayResultPending {
			return false
		}
	}
	return true
}

// AnyAssayPositive reports whether any assay came back positive.
func (u *BloodUnit) AnyAssayPositive() bool {
	for _, a := range Assays {
		if u.TestResults[a] == AssayResultPositive {
			return true
		}
	}
	return false
}

// Movement is one entry in a unit's append-only storage-location log.
type Movement struct {
	ID           uuid.UUID `json:"id"`
	UnitID       uuid.UUID `json:"unit_id"`
	FromLocation string    `json:"from_location"`
	ToLocation   string    `json:"to_location"`
	MovedBy      uuid.UUID `json:"moved_by"`
	MovedAt      time.Time `json:"moved_at"`
}

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusFulfilled RequestStatus = "fulfilled"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusFulfilled || s == RequestStatusRejected || s == RequestStatusCancelled
}

// BloodRequest is a staff demand for N units of one blood group at one hospital.
type BloodRequest struct {
	ID              uuid.UUID     `json:"id"`
	HospitalID      uuid.UUID     `json:"hospital_id"`
	RequesterID     uuid.UUID     `json:"requester_id"`
	BloodGroup      BloodGroup    `json:"blood_group"`
	Quantity        int           `json:"quantity"`
	Status          RequestStatus `json:"status"`
	ApprovedBy      *uuid.UUID    `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	ReservedUnits   []uuid.UUID   `json:"reserved_units,omitempty"`
	FulfilledUnits  []uuid.UUID   `json:"fulfilled_units,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusApproved  TransferStatus = "approved"
	TransferStatusRejected  TransferStatus = "rejected"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusCancelled TransferStatus = "cancelled"
)

// TransferRequest asks another hospital to send units. Only the receiving
// hospital's admin may approve or reject; either party may complete.
type TransferRequest struct {
	ID             uuid.UUID      `json:"id"`
	FromHospitalID uuid.UUID      `json:"from_hospital_id"`
	ToHospitalID   uuid.UUID      `json:"to_hospital_id"`
	RequesterID    uuid.UUID      `json:"requester_id"`
	BloodGroup     BloodGroup     `json:"blood_group"`
	Quantity       int            `json:"quantity"`
	Status         TransferStatus `json:"status"`
	DecidedBy      *uuid.UUID     `json:"decided_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type Hospital struct {
	ID         uuid.UUID          `json:"id"`
	Name       string             `json:"name"`
	Approved   bool               `json:"approved"`
	AdminID    uuid.UUID          `json:"admin_id"`
	Latitude   float64            `json:"latitude"`
	Longitude  float64            `json:"longitude"`
	Thresholds map[BloodGroup]int `json:"thresholds,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Threshold returns the configured low-stock threshold for a group, or def
// when the hospital has none set.
func (h *Hospital) Threshold(group BloodGroup, def int) int {
	if t, ok := h.Thresholds[group]; ok && t > 0 {
		return t
	}
	return def
}

type Donor struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	BloodGroup       BloodGroup `json:"blood_group"`
	Eligible         bool       `json:"eligible"`
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	LastDonationDate *time.Time `json:"last_donation_date,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type Role string

const (
	RoleStaff         Role = "staff"
	RoleHospitalAdmin Role = "hospital_admin"
	RoleSuperAdmin    Role = "super_admin"
)

// Identity is the authenticated caller as supplied by the boundary. The core
// trusts it without re-verifying credentials. HospitalID is zero for super
// admins, who are not scoped.
type Identity struct {
	UserID     uuid.UUID `json:"user_id"`
	Role       Role      `json:"role"`
	HospitalID uuid.UUID `json:"hospital_id,omitempty"`
}

func (i Identity) SuperAdmin() bool {
	return i.Role == RoleSuperAdmin
}

// CanAccess reports whether the identity may see records scoped to hospitalID.
func (i Identity) CanAccess(hospitalID uuid.UUID) bool {
	return i.SuperAdmin() || i.HospitalID == hospitalID
}
