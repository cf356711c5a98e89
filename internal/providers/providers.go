// Package providers exposes the provider-management subsystem at its
// interface boundary. The adjudication engine only ever reads approval
// facts from here; it never mutates them.
package providers

import (
	"context"
	"sync"

	id "medisure/pkg/domain"
	dErrors "medisure/pkg/domain-errors"
)

// ApprovalStatus is the read-only verification fact for an institution or a
// member of personnel, owned by the provider-management collaborator.
type ApprovalStatus string

const (
	StatusPending   ApprovalStatus = "pending"
	StatusApproved  ApprovalStatus = "approved"
	StatusSuspended ApprovalStatus = "suspended"
	StatusExpired   ApprovalStatus = "expired"
)

// IsValid checks if the approval status is one of the supported values.
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusSuspended, StatusExpired:
		return true
	}
	return false
}

// Directory answers point-in-time approval lookups.
type Directory interface {
	InstitutionApprovalStatus(ctx context.Context, institutionID id.InstitutionID) (ApprovalStatus, error)
	PersonnelApprovalStatus(ctx context.Context, personnelID id.PersonnelID) (ApprovalStatus, error)
}

// InMemoryDirectory backs the memory storage mode and tests. Unknown
// providers report a not-found error rather than a default status, so a
// typo'd institution id cannot silently verify a claim.
type InMemoryDirectory struct {
	mu           sync.RWMutex
	institutions map[id.InstitutionID]ApprovalStatus
	personnel    map[id.PersonnelID]ApprovalStatus
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		institutions: make(map[id.InstitutionID]ApprovalStatus),
		personnel:    make(map[id.PersonnelID]ApprovalStatus),
	}
}

// SetInstitutionStatus records or updates an institution approval fact.
func (d *InMemoryDirectory) SetInstitutionStatus(institutionID id.InstitutionID, status ApprovalStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.institutions[institutionID] = status
}

// SetPersonnelStatus records or updates a personnel approval fact.
func (d *InMemoryDirectory) SetPersonnelStatus(personnelID id.PersonnelID, status ApprovalStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.personnel[personnelID] = status
}

func (d *InMemoryDirectory) InstitutionApprovalStatus(_ context.Context, institutionID id.InstitutionID) (ApprovalStatus, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	status, ok := d.institutions[institutionID]
	if !ok {
		return "", dErrors.Newf(dErrors.CodeNotFound, "institution %s is not registered", institutionID)
	}
	return status, nil
}

func (d *InMemoryDirectory) PersonnelApprovalStatus(_ context.Context, personnelID id.PersonnelID) (ApprovalStatus, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	status, ok := d.personnel[personnelID]
	if !ok {
		return "", dErrors.Newf(dErrors.CodeNotFound, "personnel %s is not registered", personnelID)
	}
	return status, nil
}
