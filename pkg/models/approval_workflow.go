package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// WorkflowStatus is the state of a composite's approval workflow.
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "PENDING"
	WorkflowStatusInReview  WorkflowStatus = "IN_REVIEW"
	WorkflowStatusApproved  WorkflowStatus = "APPROVED"
	WorkflowStatusRejected  WorkflowStatus = "REJECTED"
	WorkflowStatusCancelled WorkflowStatus = "CANCELLED"
)

// AllWorkflowStatuses lists every workflow status.
var AllWorkflowStatuses = []WorkflowStatus{
	WorkflowStatusPending,
	WorkflowStatusInReview,
	WorkflowStatusApproved,
	WorkflowStatusRejected,
	WorkflowStatusCancelled,
}

// Valid reports whether s is a known workflow status.
func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowStatusPending, WorkflowStatusInReview, WorkflowStatusApproved,
		WorkflowStatusRejected, WorkflowStatusCancelled:
		return true
	}
	return false
}

// IsOpen reports whether a reviewer can still act on the workflow.
func (s WorkflowStatus) IsOpen() bool {
	return s == WorkflowStatusPending || s == WorkflowStatusInReview
}

// ApprovalWorkflow is the review record that accompanies a composite once it
// has been submitted for approval. There is at most one per composite.
type ApprovalWorkflow struct {
	ID              uuid.UUID      `json:"id"`
	CompositeID     uuid.UUID      `json:"composite_id"`
	AssignedTo      *string        `json:"assigned_to,omitempty"`
	AssignedBy      *string        `json:"assigned_by,omitempty"`
	ReviewedBy      *string        `json:"reviewed_by,omitempty"`
	Status          WorkflowStatus `json:"status"`
	ReviewComments  *string        `json:"review_comments,omitempty"`
	RejectionReason *string        `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	AssignedAt      *time.Time     `json:"assigned_at,omitempty"`
	ReviewedAt      *time.Time     `json:"reviewed_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// WorkflowFilters narrows workflow listings.
type WorkflowFilters struct {
	Status     *WorkflowStatus
	AssignedTo string
	Limit      int
	Offset     int
}

// ParseWorkflowStatus converts s (case-insensitive) to a WorkflowStatus.
func ParseWorkflowStatus(s string) (WorkflowStatus, bool) {
	status := WorkflowStatus(strings.ToUpper(strings.TrimSpace(s)))
	return status, status.Valid()
}
