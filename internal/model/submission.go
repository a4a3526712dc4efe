package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// SubmissionStatus is the moderation state of a submission.
type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "pending"
	StatusApproved SubmissionStatus = "approved"
	StatusRejected SubmissionStatus = "rejected"
)

// transitions lists every allowed move. Anything absent is rejected.
var transitions = map[SubmissionStatus]map[SubmissionStatus]bool{
	StatusPending: {
		StatusApproved: true,
		StatusRejected: true,
	},
}

// CanTransition reports whether a submission may move from one status to another.
func CanTransition(from, to SubmissionStatus) bool {
	return transitions[from][to]
}

// Terminal reports whether no transition leaves s.
func (s SubmissionStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Decision is a moderator verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Target returns the status a decision moves a submission to.
func (d Decision) Target() (SubmissionStatus, bool) {
	switch d {
	case DecisionApprove:
		return StatusApproved, true
	case DecisionReject:
		return StatusRejected, true
	}
	return "", false
}

// ModuleDraft is what an author proposes for moderation.
type ModuleDraft struct {
	ModuleUUID  string
	Name        string
	Description string
	Category    Category
	Version     string
	RepoURL     string
	Changelog   string
	PackageKey  string
	Tags        []string
	License     string
}

// Submission is a moderation-queue candidate module.
type Submission struct {
	ID          uuid.UUID
	Draft       ModuleDraft
	Status      SubmissionStatus
	Reason      string
	SubmitterID uuid.UUID
	ReviewedBy  uuid.NullUUID
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}
