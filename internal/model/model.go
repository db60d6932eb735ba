// Package model contains the records the console reads from the API.
// I keep it lean and focused on data shapes; the only behavior is role checks.
package model

import (
	"strings"
	"time"
)

// Role is a console user's role as issued by the backend.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleManager   Role = "MANAGER"
	RoleFrontdesk Role = "FRONTDESK"
	RoleRider     Role = "RIDER"
)

// ParseRole normalizes a role name; unknown names come back as-is, upper-cased.
func ParseRole(s string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(s)))
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleFrontdesk, RoleRider:
		return true
	default:
		return false
	}
}

// ParcelStatus is the delivery lifecycle stage of a parcel.
type ParcelStatus string

const (
	StatusRegistered ParcelStatus = "REGISTERED"
	StatusAssigned   ParcelStatus = "ASSIGNED"
	StatusInTransit  ParcelStatus = "IN_TRANSIT"
	StatusDelivered  ParcelStatus = "DELIVERED"
	StatusReturned   ParcelStatus = "RETURNED"
)

// Parcel is a registered shipment.
type Parcel struct {
	ID              string       `json:"id"`
	TrackingNumber  string       `json:"trackingNumber"`
	SenderName      string       `json:"senderName"`
	SenderPhone     string       `json:"senderPhone"`
	ReceiverName    string       `json:"receiverName"`
	ReceiverPhone   string       `json:"receiverPhone"`
	ReceiverAddress string       `json:"receiverAddress"`
	OfficeID        string       `json:"officeId"`
	RiderID         string       `json:"riderId,omitempty"`
	Status          ParcelStatus `json:"status"`
	Delivered       bool         `json:"delivered"`
	DeliveryFee     float64      `json:"deliveryFee"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// User is a console account.
type User struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Email     string    `json:"email" yaml:"email"`
	Phone     string    `json:"phone,omitempty" yaml:"phone,omitempty"`
	Role      Role      `json:"role" yaml:"role"`
	OfficeID  string    `json:"officeId,omitempty" yaml:"office_id,omitempty"`
	Active    bool      `json:"active" yaml:"active"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
}

// Viewer is the role and scope a list is being read for.
type Viewer struct {
	Role    Role
	ScopeID string
}

// Privileged reports whether the viewer sees every scope.
func (v Viewer) Privileged() bool { return v.Role == RoleAdmin }

// Viewer derives the list viewer from the user record.
func (u User) Viewer() Viewer {
	return Viewer{Role: u.Role, ScopeID: u.OfficeID}
}
