package models

import (
	"time"

	"github.com/google/uuid"

	id "likeness/pkg/domain"
)

type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

func (d Decision) IsValid() bool {
	return d == DecisionAccepted || d == DecisionRejected
}

// Review is the final verdict on one bounty submission. A submission is
// reviewed at most once.
type Review struct {
	SubmissionID  uuid.UUID        `json:"submission_id"`
	ContributorID id.ContributorID `json:"contributor_id"`
	ReviewerID    id.ContributorID `json:"reviewer_id"`
	Decision      Decision         `json:"decision"`
	Notes         string           `json:"notes"`
	ReviewedAt    time.Time        `json:"reviewed_at"`
}

// ReviewedPayload is the body of bounty.submission_reviewed webhooks. Notes
// stay internal.
type ReviewedPayload struct {
	SubmissionID  string    `json:"submission_id"`
	ContributorID string    `json:"contributor_id"`
	CID           string    `json:"cid,omitempty"`
	Decision      Decision  `json:"decision"`
	ReviewedAt    time.Time `json:"reviewed_at"`
}
