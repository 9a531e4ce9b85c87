package models

import (
	"strings"
	"time"
)

// ReviewStatus is the lifecycle state of a submission review.
type ReviewStatus string

const (
	ReviewStatusPending       ReviewStatus = "pending"
	ReviewStatusReviewing     ReviewStatus = "reviewing"
	ReviewStatusApproved      ReviewStatus = "approved"
	ReviewStatusRejected      ReviewStatus = "rejected"
	ReviewStatusNeedsRevision ReviewStatus = "needs_revision"
	ReviewStatusNeedsRegrade  ReviewStatus = "needs_regrade"
)

var reviewStatuses = map[ReviewStatus]struct{}{
	ReviewStatusPending:       {},
	ReviewStatusReviewing:     {},
	ReviewStatusApproved:      {},
	ReviewStatusRejected:      {},
	ReviewStatusNeedsRevision: {},
	ReviewStatusNeedsRegrade:  {},
}

// ParseReviewStatus normalizes a status string and reports whether it is known.
func ParseReviewStatus(value string) (ReviewStatus, bool) {
	status := ReviewStatus(strings.ToLower(strings.TrimSpace(value)))
	_, ok := reviewStatuses[status]
	return status, ok
}

// IsTerminal reports whether the status closes the current review cycle.
func (s ReviewStatus) IsTerminal() bool {
	return s == ReviewStatusApproved || s == ReviewStatusRejected
}

// CanTransitionTo reports whether a reviewer may move a review from s to next.
// Non-terminal states move anywhere, pending included. Terminal states only
// reopen into needs_revision or needs_regrade.
func (s ReviewStatus) CanTransitionTo(next ReviewStatus) bool {
	if _, ok := reviewStatuses[next]; !ok {
		return false
	}
	if next == s {
		return true
	}
	if s.IsTerminal() {
		return next == ReviewStatusNeedsRevision || next == ReviewStatusNeedsRegrade
	}
	return true
}

// ReviewRecord tracks the human review of one submission.
type ReviewRecord struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	SubmissionID uint         `gorm:"not null;uniqueIndex" json:"submission_id"`
	Status       ReviewStatus `gorm:"size:32;not null" json:"status"`
	Notes        string       `gorm:"type:text" json:"notes"`
	ReviewerID   *uint        `json:"reviewer_id"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Adjustments  []Adjustment `gorm:"foreignKey:ReviewID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"adjustments"`
}

// Adjustment is one append-only ledger entry overriding the correct answer of
// a question for a single submission. NewCorrectAnswer is an absolute 0-based
// index, never a delta, so the ledger can be replayed.
type Adjustment struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	ReviewID           uint      `gorm:"not null;index" json:"review_id"`
	SubmissionID       uint      `gorm:"not null;index" json:"submission_id"`
	Sequence           int       `gorm:"not null" json:"sequence"`
	QuestionNumber     int       `gorm:"not null" json:"question_number"`
	NewCorrectAnswer   int       `gorm:"not null" json:"new_correct_answer"`
	TeacherExplanation string    `gorm:"type:text" json:"teacher_explanation"`
	NewPoints          float64   `gorm:"not null" json:"new_points"`
	CreatedBy          uint      `json:"created_by"`
	CreatedAt          time.Time `json:"created_at"`
}
