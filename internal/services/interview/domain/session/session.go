// Package session defines the interview session aggregate and its lifecycle
// state machine.
//
// All transitions are pure functions taking and returning Session values.
// The orchestration layer owns persistence and per-session serialization;
// this package owns which moves are legal.
package session

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/caliperhq/caliper/internal/platform/errors"
	"github.com/caliperhq/caliper/internal/platform/id"
)

// Status describes the lifecycle state of an interview session.
type Status int

const (
	// StatusUnspecified represents an invalid session status value.
	StatusUnspecified Status = iota
	// StatusScheduled indicates the session is scheduled but not started.
	StatusScheduled
	// StatusInProgress indicates the candidate is actively answering.
	StatusInProgress
	// StatusPaused indicates the session is paused and may resume.
	StatusPaused
	// StatusCompleted indicates the session finished normally.
	StatusCompleted
	// StatusCancelled indicates the session was cancelled before starting.
	StatusCancelled
	// StatusExpired indicates a timeout ended the session.
	StatusExpired
	// StatusTechnicalIssues indicates a media-layer fault interrupted the session.
	StatusTechnicalIssues
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// Label returns a stable label for a session status.
func (s Status) Label() string {
	switch s {
	case StatusScheduled:
		return "SCHEDULED"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusPaused:
		return "PAUSED"
	case StatusCompleted:
		return "COMPLETED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusExpired:
		return "EXPIRED"
	case StatusTechnicalIssues:
		return "TECHNICAL_ISSUES"
	default:
		return "UNSPECIFIED"
	}
}

// StatusFromLabel parses a string label into a Status. It trims whitespace
// and matches case-insensitively.
func StatusFromLabel(value string) (Status, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return StatusUnspecified, fmt.Errorf("session status is required")
	}
	switch strings.ToUpper(trimmed) {
	case "SCHEDULED":
		return StatusScheduled, nil
	case "IN_PROGRESS":
		return StatusInProgress, nil
	case "PAUSED":
		return StatusPaused, nil
	case "COMPLETED":
		return StatusCompleted, nil
	case "CANCELLED":
		return StatusCancelled, nil
	case "EXPIRED":
		return StatusExpired, nil
	case "TECHNICAL_ISSUES":
		return StatusTechnicalIssues, nil
	default:
		return StatusUnspecified, fmt.Errorf("unknown session status: %s", trimmed)
	}
}

// EndReason records why a session reached a terminal state.
type EndReason int

const (
	// EndReasonUnspecified means the session has not ended.
	EndReasonUnspecified EndReason = iota
	// EndReasonMaxQuestions means the maximum question count was reached.
	EndReasonMaxQuestions
	// EndReasonPrecision means the ability estimate reached target precision.
	EndReasonPrecision
	// EndReasonTerminatedEarly means a recruiter ended the interview early.
	EndReasonTerminatedEarly
	// EndReasonPoolExhausted means the question pool ran out of items.
	EndReasonPoolExhausted
	// EndReasonCancelled means the session was cancelled before starting.
	EndReasonCancelled
	// EndReasonTimeout means a timeout window elapsed.
	EndReasonTimeout
)

// Label returns a stable label for an end reason.
func (r EndReason) Label() string {
	switch r {
	case EndReasonMaxQuestions:
		return "MAX_QUESTIONS"
	case EndReasonPrecision:
		return "PRECISION_REACHED"
	case EndReasonTerminatedEarly:
		return "TERMINATED_EARLY"
	case EndReasonPoolExhausted:
		return "POOL_EXHAUSTED"
	case EndReasonCancelled:
		return "CANCELLED"
	case EndReasonTimeout:
		return "TIMEOUT"
	default:
		return "UNSPECIFIED"
	}
}

// EndReasonFromLabel parses a string label into an EndReason. Unknown labels
// map to EndReasonUnspecified.
func EndReasonFromLabel(value string) EndReason {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "MAX_QUESTIONS":
		return EndReasonMaxQuestions
	case "PRECISION_REACHED":
		return EndReasonPrecision
	case "TERMINATED_EARLY":
		return EndReasonTerminatedEarly
	case "POOL_EXHAUSTED":
		return EndReasonPoolExhausted
	case "CANCELLED":
		return EndReasonCancelled
	case "TIMEOUT":
		return EndReasonTimeout
	default:
		return EndReasonUnspecified
	}
}

var (
	// ErrEmptyCandidateID indicates a missing candidate ID.
	ErrEmptyCandidateID = apperrors.New(apperrors.CodeSessionEmptyCandidateID, "candidate id is required")
	// ErrEmptyRecruiterID indicates a missing recruiter ID.
	ErrEmptyRecruiterID = apperrors.New(apperrors.CodeSessionEmptyRecruiterID, "recruiter id is required")
	// ErrEmptyJobRole indicates a missing job role.
	ErrEmptyJobRole = apperrors.New(apperrors.CodeSessionEmptyJobRole, "job role is required")
)

// Session represents one scheduled interview between a candidate, a
// recruiter, and the AI interviewer.
type Session struct {
	ID          string
	CandidateID string
	RecruiterID string
	JobRole     string
	// Technologies scopes the question pool for this session.
	Technologies []string
	Status       Status
	// EndReason is set when the session enters a terminal status.
	EndReason EndReason

	// ScheduledStartAt is when the interview is planned to begin.
	ScheduledStartAt time.Time
	// ActualStartAt is set only on the transition into IN_PROGRESS.
	ActualStartAt *time.Time
	// EndedAt is set only on the transition into a terminal status.
	EndedAt *time.Time
	// PausedAt drives the pause expiry timeout while PAUSED.
	PausedAt *time.Time
	// FaultedAt drives the fault expiry timeout while TECHNICAL_ISSUES.
	FaultedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	// Theta is the current ability estimate.
	Theta float64
	// StandardError is the uncertainty on Theta; non-increasing across updates.
	StandardError float64
	// Information is the accumulated Fisher information backing StandardError.
	Information float64

	MinQuestions int
	MaxQuestions int
	// AskedQuestionIDs is the ordered list of issued questions; no duplicates,
	// never longer than MaxQuestions.
	AskedQuestionIDs []string
	// CurrentQuestionID is the question awaiting a response, empty outside
	// IN_PROGRESS/PAUSED.
	CurrentQuestionID string

	// RoomURL is the opaque meeting-room handle for this session.
	RoomURL string
}

// ScheduleInput describes the metadata needed to schedule a session.
type ScheduleInput struct {
	CandidateID      string
	RecruiterID      string
	JobRole          string
	Technologies     []string
	ScheduledStartAt time.Time
	MinQuestions     int
	MaxQuestions     int
	// InitialTheta and InitialStandardError seed the ability estimate.
	InitialTheta         float64
	InitialStandardError float64
}

// Schedule creates a new session in SCHEDULED with a generated ID.
func Schedule(input ScheduleInput, now func() time.Time, idGenerator func() (string, error)) (Session, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeScheduleInput(input, now)
	if err != nil {
		return Session{}, err
	}

	sessionID, err := idGenerator()
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}

	createdAt := now().UTC()
	initialSE := normalized.InitialStandardError
	if initialSE <= 0 {
		initialSE = 1.0
	}
	return Session{
		ID:               sessionID,
		CandidateID:      normalized.CandidateID,
		RecruiterID:      normalized.RecruiterID,
		JobRole:          normalized.JobRole,
		Technologies:     normalized.Technologies,
		Status:           StatusScheduled,
		ScheduledStartAt: normalized.ScheduledStartAt,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
		Theta:            normalized.InitialTheta,
		StandardError:    initialSE,
		MinQuestions:     normalized.MinQuestions,
		MaxQuestions:     normalized.MaxQuestions,
	}, nil
}

// NormalizeScheduleInput trims and validates scheduling input.
func NormalizeScheduleInput(input ScheduleInput, now func() time.Time) (ScheduleInput, error) {
	if now == nil {
		now = time.Now
	}
	input.CandidateID = strings.TrimSpace(input.CandidateID)
	if input.CandidateID == "" {
		return ScheduleInput{}, ErrEmptyCandidateID
	}
	input.RecruiterID = strings.TrimSpace(input.RecruiterID)
	if input.RecruiterID == "" {
		return ScheduleInput{}, ErrEmptyRecruiterID
	}
	input.JobRole = strings.TrimSpace(input.JobRole)
	if input.JobRole == "" {
		return ScheduleInput{}, ErrEmptyJobRole
	}
	if input.MinQuestions <= 0 || input.MaxQuestions <= 0 || input.MinQuestions > input.MaxQuestions {
		return ScheduleInput{}, apperrors.WithMetadata(
			apperrors.CodeSessionInvalidQuestionBounds,
			fmt.Sprintf("question bounds must satisfy 0 < min <= max, got min=%d max=%d", input.MinQuestions, input.MaxQuestions),
			map[string]string{
				"MinQuestions": fmt.Sprintf("%d", input.MinQuestions),
				"MaxQuestions": fmt.Sprintf("%d", input.MaxQuestions),
			},
		)
	}
	input.ScheduledStartAt = input.ScheduledStartAt.UTC()
	if !input.ScheduledStartAt.After(now().UTC()) {
		return ScheduleInput{}, apperrors.New(
			apperrors.CodeSessionInvalidSchedule,
			"scheduled start time must be in the future",
		)
	}
	cleaned := make([]string, 0, len(input.Technologies))
	for _, tech := range input.Technologies {
		tech = strings.TrimSpace(tech)
		if tech != "" {
			cleaned = append(cleaned, tech)
		}
	}
	input.Technologies = cleaned
	return input, nil
}

// invalidTransition builds the error for a disallowed lifecycle move.
func invalidTransition(from Status, to Status) error {
	fromLabel := from.Label()
	toLabel := to.Label()
	return apperrors.WithMetadata(
		apperrors.CodeSessionInvalidTransition,
		fmt.Sprintf("session transition not allowed: %s -> %s", fromLabel, toLabel),
		map[string]string{"FromStatus": fromLabel, "ToStatus": toLabel},
	)
}

// Start moves a SCHEDULED session into IN_PROGRESS and records the actual
// start time. Starting is allowed from a small grace window before the
// scheduled start.
func Start(s Session, now func() time.Time, grace time.Duration) (Session, error) {
	if now == nil {
		now = time.Now
	}
	if s.Status != StatusScheduled {
		return Session{}, invalidTransition(s.Status, StatusInProgress)
	}
	startedAt := now().UTC()
	if startedAt.Before(s.ScheduledStartAt.Add(-grace)) {
		return Session{}, apperrors.WithMetadata(
			apperrors.CodeSessionStartBeforeWindow,
			fmt.Sprintf("session cannot start before %s", s.ScheduledStartAt.Add(-grace).Format(time.RFC3339)),
			map[string]string{"ScheduledStartAt": s.ScheduledStartAt.Format(time.RFC3339)},
		)
	}

	updated := s
	updated.Status = StatusInProgress
	updated.ActualStartAt = &startedAt
	updated.UpdatedAt = startedAt
	return updated, nil
}

// Pause moves an IN_PROGRESS session into PAUSED.
func Pause(s Session, now func() time.Time) (Session, error) {
	if now == nil {
		now = time.Now
	}
	if s.Status != StatusInProgress {
		return Session{}, invalidTransition(s.Status, StatusPaused)
	}
	pausedAt := now().UTC()
	updated := s
	updated.Status = StatusPaused
	updated.PausedAt = &pausedAt
	updated.UpdatedAt = pausedAt
	return updated, nil
}

// Resume moves a PAUSED or TECHNICAL_ISSUES session back into IN_PROGRESS.
// The ability estimate and the pending question are untouched.
func Resume(s Session, now func() time.Time) (Session, error) {
	if now == nil {
		now = time.Now
	}
	if s.Status != StatusPaused && s.Status != StatusTechnicalIssues {
		return Session{}, invalidTransition(s.Status, StatusInProgress)
	}
	resumedAt := now().UTC()
	updated := s
	updated.Status = StatusInProgress
	updated.PausedAt = nil
	updated.FaultedAt = nil
	updated.UpdatedAt = resumedAt
	return updated, nil
}

// Cancel moves a SCHEDULED session into CANCELLED.
func Cancel(s Session, now func() time.Time) (Session, error) {
	if now == nil {
		now = time.Now
	}
	if s.Status != StatusScheduled {
		return Session{}, invalidTransition(s.Status, StatusCancelled)
	}
	endedAt := now().UTC()
	updated := s
	updated.Status = StatusCancelled
	updated.EndReason = EndReasonCancelled
	updated.EndedAt = &endedAt
	updated.UpdatedAt = endedAt
	return updated, nil
}

// Complete moves an IN_PROGRESS session into COMPLETED with the given reason.
func Complete(s Session, reason EndReason, now func() time.Time) (Session, error) {
	if now == nil {
		now = time.Now
	}
	if s.Status != StatusInProgress {
		return Session{}, invalidTransition(s.Status, StatusCompleted)
	}
	endedAt := now().UTC()
	updated := s
	updated.Status = StatusCompleted
	updated.EndReason = reason
	updated.EndedAt = &endedAt
	updated.CurrentQuestionID = ""
	updated.UpdatedAt = endedAt
	return updated, nil
}

// TerminateEarly completes an IN_PROGRESS session before the stopping rule
// fires. The minimum question count must already be met.
func TerminateEarly(s Session, now func() time.Time) (Session, error) {
	if s.Status != StatusInProgress {
		return Session{}, invalidTransition(s.Status, StatusCompleted)
	}
	if len(s.AskedQuestionIDs) < s.MinQuestions {
		return Session{}, apperrors.WithMetadata(
			apperrors.CodeSessionMinQuestionsNotMet,
			fmt.Sprintf("cannot terminate early: %d of %d minimum questions asked", len(s.AskedQuestionIDs), s.MinQuestions),
			map[string]string{
				"Asked":        fmt.Sprintf("%d", len(s.AskedQuestionIDs)),
				"MinQuestions": fmt.Sprintf("%d", s.MinQuestions),
			},
		)
	}
	return Complete(s, EndReasonTerminatedEarly, now)
}

// ReportFault moves any non-terminal session into TECHNICAL_ISSUES.
func ReportFault(s Session, now func() time.Time) (Session, error) {
	if now == nil {
		now = time.Now
	}
	if s.Status.IsTerminal() || s.Status == StatusUnspecified {
		return Session{}, invalidTransition(s.Status, StatusTechnicalIssues)
	}
	if s.Status == StatusTechnicalIssues {
		return Session{}, invalidTransition(s.Status, StatusTechnicalIssues)
	}
	faultedAt := now().UTC()
	updated := s
	updated.Status = StatusTechnicalIssues
	updated.FaultedAt = &faultedAt
	updated.PausedAt = nil
	updated.UpdatedAt = faultedAt
	return updated, nil
}

// Expire moves a timed-out session into EXPIRED. Only SCHEDULED, PAUSED, and
// TECHNICAL_ISSUES sessions can expire.
func Expire(s Session, now func() time.Time) (Session, error) {
	if now == nil {
		now = time.Now
	}
	switch s.Status {
	case StatusScheduled, StatusPaused, StatusTechnicalIssues:
	default:
		return Session{}, invalidTransition(s.Status, StatusExpired)
	}
	endedAt := now().UTC()
	updated := s
	updated.Status = StatusExpired
	updated.EndReason = EndReasonTimeout
	updated.EndedAt = &endedAt
	updated.CurrentQuestionID = ""
	updated.UpdatedAt = endedAt
	return updated, nil
}

// Windows holds the timeout windows driving background expiry.
type Windows struct {
	// StartGrace allows starting slightly before the scheduled time.
	StartGrace time.Duration
	// ScheduledExpiry expires sessions never started past their slot.
	ScheduledExpiry time.Duration
	// PauseTimeout expires sessions paused for too long.
	PauseTimeout time.Duration
	// FaultTimeout expires sessions stuck in TECHNICAL_ISSUES.
	FaultTimeout time.Duration
}

// DefaultWindows returns the default timeout windows.
func DefaultWindows() Windows {
	return Windows{
		StartGrace:      5 * time.Minute,
		ScheduledExpiry: 30 * time.Minute,
		PauseTimeout:    15 * time.Minute,
		FaultTimeout:    10 * time.Minute,
	}
}

// ExpiryDue reports whether the session's timeout window has elapsed.
// Terminal sessions are never due.
func ExpiryDue(s Session, now time.Time, windows Windows) bool {
	now = now.UTC()
	switch s.Status {
	case StatusScheduled:
		return now.After(s.ScheduledStartAt.Add(windows.ScheduledExpiry))
	case StatusPaused:
		return s.PausedAt != nil && now.After(s.PausedAt.Add(windows.PauseTimeout))
	case StatusTechnicalIssues:
		return s.FaultedAt != nil && now.After(s.FaultedAt.Add(windows.FaultTimeout))
	default:
		return false
	}
}

// IssueQuestion appends a newly selected question and makes it current.
// The asked list stays unique and never exceeds MaxQuestions.
func IssueQuestion(s Session, questionID string, now func() time.Time) (Session, error) {
	if now == nil {
		now = time.Now
	}
	if s.Status != StatusInProgress {
		return Session{}, invalidTransition(s.Status, s.Status)
	}
	questionID = strings.TrimSpace(questionID)
	if questionID == "" {
		return Session{}, fmt.Errorf("question id is required")
	}
	if len(s.AskedQuestionIDs) >= s.MaxQuestions {
		return Session{}, fmt.Errorf("asked question limit reached: %d", s.MaxQuestions)
	}
	for _, asked := range s.AskedQuestionIDs {
		if asked == questionID {
			return Session{}, fmt.Errorf("question %s already asked", questionID)
		}
	}
	updated := s
	updated.AskedQuestionIDs = append(append([]string(nil), s.AskedQuestionIDs...), questionID)
	updated.CurrentQuestionID = questionID
	updated.UpdatedAt = now().UTC()
	return updated, nil
}

// ApplyEstimate records an updated ability estimate on the session.
func ApplyEstimate(s Session, theta, standardError, information float64, now func() time.Time) Session {
	if now == nil {
		now = time.Now
	}
	updated := s
	updated.Theta = theta
	updated.StandardError = standardError
	updated.Information = information
	updated.CurrentQuestionID = ""
	updated.UpdatedAt = now().UTC()
	return updated
}
