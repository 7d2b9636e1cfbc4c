// Package candidate tracks the recruitment-pipeline status of a candidate.
//
// The candidate pipeline is a lifecycle of its own, independent from any
// single interview session. Scheduling consults it for eligibility.
package candidate

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/caliperhq/caliper/internal/platform/errors"
)

// Status describes where a candidate stands in the recruitment pipeline.
type Status int

const (
	// StatusUnspecified represents an invalid candidate status value.
	StatusUnspecified Status = iota
	// StatusPending indicates a newly registered candidate.
	StatusPending
	// StatusApplied indicates the candidate applied to a position.
	StatusApplied
	// StatusInterviewScheduled indicates an interview has been booked.
	StatusInterviewScheduled
	// StatusInProgress indicates the candidate is being interviewed.
	StatusInProgress
	// StatusCompleted indicates the interview finished.
	StatusCompleted
	// StatusUnderReview indicates results are with the recruiter.
	StatusUnderReview
	// StatusSelected indicates the candidate was hired.
	StatusSelected
	// StatusRejected indicates the candidate was turned down.
	StatusRejected
	// StatusOnHold indicates the pipeline is paused for this candidate.
	StatusOnHold
	// StatusWithdrawn indicates the candidate pulled out.
	StatusWithdrawn
)

// transitions is the closed candidate pipeline transition table. Terminal
// statuses carry no entry.
var transitions = map[Status][]Status{
	StatusPending:            {StatusApplied, StatusRejected, StatusWithdrawn},
	StatusApplied:            {StatusInterviewScheduled, StatusRejected, StatusOnHold, StatusWithdrawn},
	StatusInterviewScheduled: {StatusInProgress, StatusRejected, StatusOnHold, StatusWithdrawn},
	StatusInProgress:         {StatusCompleted, StatusRejected, StatusOnHold},
	StatusCompleted:          {StatusUnderReview},
	StatusUnderReview:        {StatusSelected, StatusRejected, StatusOnHold},
	StatusOnHold:             {StatusApplied, StatusInterviewScheduled, StatusRejected, StatusWithdrawn},
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSelected, StatusRejected, StatusWithdrawn:
		return true
	default:
		return false
	}
}

// Label returns a stable label for a candidate status.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusApplied:
		return "APPLIED"
	case StatusInterviewScheduled:
		return "INTERVIEW_SCHEDULED"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusCompleted:
		return "COMPLETED"
	case StatusUnderReview:
		return "UNDER_REVIEW"
	case StatusSelected:
		return "SELECTED"
	case StatusRejected:
		return "REJECTED"
	case StatusOnHold:
		return "ON_HOLD"
	case StatusWithdrawn:
		return "WITHDRAWN"
	default:
		return "UNSPECIFIED"
	}
}

// StatusFromLabel parses a string label into a Status.
func StatusFromLabel(value string) (Status, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return StatusUnspecified, fmt.Errorf("candidate status is required")
	}
	switch strings.ToUpper(trimmed) {
	case "PENDING":
		return StatusPending, nil
	case "APPLIED":
		return StatusApplied, nil
	case "INTERVIEW_SCHEDULED":
		return StatusInterviewScheduled, nil
	case "IN_PROGRESS":
		return StatusInProgress, nil
	case "COMPLETED":
		return StatusCompleted, nil
	case "UNDER_REVIEW":
		return StatusUnderReview, nil
	case "SELECTED":
		return StatusSelected, nil
	case "REJECTED":
		return StatusRejected, nil
	case "ON_HOLD":
		return StatusOnHold, nil
	case "WITHDRAWN":
		return StatusWithdrawn, nil
	default:
		return StatusUnspecified, fmt.Errorf("unknown candidate status: %s", trimmed)
	}
}

// AllowedTargets returns the statuses reachable from the given status, in
// stable label order. Terminal statuses return an empty list.
func AllowedTargets(from Status) []Status {
	targets := append([]Status(nil), transitions[from]...)
	sort.Slice(targets, func(i, j int) bool { return targets[i].Label() < targets[j].Label() })
	return targets
}

// CanSchedule reports whether a candidate in this status may have an
// interview booked.
func CanSchedule(s Status) bool {
	for _, target := range transitions[s] {
		if target == StatusInterviewScheduled {
			return true
		}
	}
	return s == StatusInterviewScheduled
}

// Transition validates a pipeline move and returns the new status. A
// disallowed move fails with the attempted and allowed targets attached.
func Transition(from Status, to Status) (Status, error) {
	for _, target := range transitions[from] {
		if target == to {
			return to, nil
		}
	}

	allowed := AllowedTargets(from)
	labels := make([]string, 0, len(allowed))
	for _, target := range allowed {
		labels = append(labels, target.Label())
	}
	return StatusUnspecified, apperrors.WithMetadata(
		apperrors.CodeCandidateInvalidStatusTransition,
		fmt.Sprintf("candidate status transition not allowed: %s -> %s", from.Label(), to.Label()),
		map[string]string{
			"FromStatus":     from.Label(),
			"ToStatus":       to.Label(),
			"AllowedTargets": strings.Join(labels, ","),
		},
	)
}
