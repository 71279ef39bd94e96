package types

import (
	"strings"
	"time"
)

// Entity type names, used as storage key namespaces
const (
	EntityUser         = "user"
	EntityOrganization = "organization"
	EntityShip         = "ship"
	EntityOperation    = "operation"
)

// Record carries the identity and bookkeeping fields shared by every entity.
// Embedding it gives a type EntityID, EntityVersion and IncrementVersion.
type Record struct {
	ID        string    `json:"id" cbor:"id"`
	Version   uint64    `json:"version" cbor:"version"`
	CreatedAt time.Time `json:"created_at" cbor:"created_at"`
	UpdatedAt time.Time `json:"updated_at" cbor:"updated_at"`
}

func newRecord(id string) Record {
	now := time.Now().UTC()
	return Record{ID: id, CreatedAt: now, UpdatedAt: now}
}

func (r *Record) EntityID() string      { return r.ID }
func (r *Record) EntityVersion() uint64 { return r.Version }

// IncrementVersion bumps the optimistic-lock version. Timestamps are left
// alone; use Touch for that.
func (r *Record) IncrementVersion() { r.Version++ }

// Touch sets UpdatedAt to now
func (r *Record) Touch() {
	r.UpdatedAt = time.Now().UTC()
}

// User is a VerseGuy account
type User struct {
	Record
	Username    string   `json:"username" cbor:"username"`
	Email       string   `json:"email" cbor:"email"`
	DisplayName string   `json:"display_name,omitempty" cbor:"display_name,omitempty"`
	Roles       []string `json:"roles,omitempty" cbor:"roles,omitempty"`
}

func NewUser(id, username, email string) *User {
	return &User{
		Record:   newRecord(id),
		Username: username,
		Email:    NormalizeEmail(email),
	}
}

func (*User) EntityType() string { return EntityUser }

// NormalizeEmail trims and lower-cases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Organization is a player organization
type Organization struct {
	Record
	Name      string   `json:"name" cbor:"name"`
	Tag       string   `json:"tag" cbor:"tag"`
	OwnerID   string   `json:"owner_id" cbor:"owner_id"`
	MemberIDs []string `json:"member_ids,omitempty" cbor:"member_ids,omitempty"`
}

func NewOrganization(id, name, tag, ownerID string) *Organization {
	return &Organization{
		Record:    newRecord(id),
		Name:      name,
		Tag:       strings.ToUpper(tag),
		OwnerID:   ownerID,
		MemberIDs: []string{ownerID},
	}
}

func (*Organization) EntityType() string { return EntityOrganization }

// HasMember reports whether userID belongs to the organization
func (o *Organization) HasMember(userID string) bool {
	for _, id := range o.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AddMember adds userID if not already present
func (o *Organization) AddMember(userID string) {
	if !o.HasMember(userID) {
		o.MemberIDs = append(o.MemberIDs, userID)
	}
}

// Ship is a vessel in a user's fleet
type Ship struct {
	Record
	OwnerID      string `json:"owner_id" cbor:"owner_id"`
	Manufacturer string `json:"manufacturer" cbor:"manufacturer"`
	Model        string `json:"model" cbor:"model"`
	Name         string `json:"name,omitempty" cbor:"name,omitempty"`
}

func NewShip(id, ownerID, manufacturer, model string) *Ship {
	return &Ship{
		Record:       newRecord(id),
		OwnerID:      ownerID,
		Manufacturer: manufacturer,
		Model:        model,
	}
}

func (*Ship) EntityType() string { return EntityShip }

// OperationStatus is the lifecycle state of an Operation
type OperationStatus string

const (
	OperationPlanned   OperationStatus = "planned"
	OperationActive    OperationStatus = "active"
	OperationCompleted OperationStatus = "completed"
	OperationCancelled OperationStatus = "cancelled"
)

// Operation is an organization event that members sign up for
type Operation struct {
	Record
	OrganizationID string          `json:"organization_id" cbor:"organization_id"`
	Title          string          `json:"title" cbor:"title"`
	Status         OperationStatus `json:"status" cbor:"status"`
	ScheduledAt    time.Time       `json:"scheduled_at" cbor:"scheduled_at"`
	ParticipantIDs []string        `json:"participant_ids,omitempty" cbor:"participant_ids,omitempty"`
}

func NewOperation(id, organizationID, title string, scheduledAt time.Time) *Operation {
	return &Operation{
		Record:         newRecord(id),
		OrganizationID: organizationID,
		Title:          title,
		Status:         OperationPlanned,
		ScheduledAt:    scheduledAt.UTC(),
	}
}

func (*Operation) EntityType() string { return EntityOperation }
