// Package app orchestrates interview sessions: scheduling, the adaptive
// question loop, credential checks, analytics, and background expiry.
//
// The domain packages hold the pure rules; this package owns persistence,
// per-session serialization, and the collaborator calls around them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	apperrors "github.com/caliperhq/caliper/internal/platform/errors"
	"github.com/caliperhq/caliper/internal/platform/id"
	"github.com/caliperhq/caliper/internal/services/interview/domain/candidate"
	"github.com/caliperhq/caliper/internal/services/interview/domain/credential"
	"github.com/caliperhq/caliper/internal/services/interview/domain/irt"
	"github.com/caliperhq/caliper/internal/services/interview/domain/question"
	"github.com/caliperhq/caliper/internal/services/interview/domain/session"
	"github.com/caliperhq/caliper/internal/services/interview/storage"
)

// Directory resolves participant metadata from the candidate-management
// subsystem. Read-only.
type Directory interface {
	// CandidateStatus returns the candidate's recruitment-pipeline status.
	CandidateStatus(ctx context.Context, candidateID string) (candidate.Status, error)
}

// RoomProvisioner allocates a meeting room for a session.
type RoomProvisioner interface {
	ProvisionRoom(ctx context.Context, sessionID string) (string, error)
}

// Notifier delivers participant notifications. Failures are logged, never
// propagated: notification delivery does not gate session state.
type Notifier interface {
	SessionScheduled(ctx context.Context, s session.Session)
	SessionStarted(ctx context.Context, s session.Session)
}

// Config collects the service collaborators and knobs.
type Config struct {
	Sessions    storage.SessionStore
	Revocations storage.RevocationStore
	Bank        question.Bank

	IssuerConfig   credential.IssuerConfig
	VerifierConfig credential.VerifierConfig

	Estimator irt.Config
	Windows   session.Windows

	// Directory, Rooms, and Notifier are optional collaborators.
	Directory Directory
	Rooms     RoomProvisioner
	Notifier  Notifier

	Now         func() time.Time
	IDGenerator func() (string, error)
}

// Service coordinates every interview session operation.
type Service struct {
	sessions    storage.SessionStore
	revocations storage.RevocationStore
	bank        question.Bank

	issuerCfg   credential.IssuerConfig
	verifierCfg credential.VerifierConfig

	estimator irt.Config
	windows   session.Windows

	directory Directory
	rooms     RoomProvisioner
	notifier  Notifier

	locks *sessionLocks

	now         func() time.Time
	idGenerator func() (string, error)
}

// NewService wires a Service from its collaborators.
func NewService(cfg Config) (*Service, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Revocations == nil {
		return nil, errors.New("revocation store is required")
	}
	if cfg.Bank == nil {
		return nil, errors.New("question bank is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = id.NewID
	}
	if cfg.Windows == (session.Windows{}) {
		cfg.Windows = session.DefaultWindows()
	}
	return &Service{
		sessions:    cfg.Sessions,
		revocations: cfg.Revocations,
		bank:        cfg.Bank,
		issuerCfg:   cfg.IssuerConfig,
		verifierCfg: cfg.VerifierConfig,
		estimator:   cfg.Estimator,
		windows:     cfg.Windows,
		directory:   cfg.Directory,
		rooms:       cfg.Rooms,
		notifier:    cfg.Notifier,
		locks:       newSessionLocks(),
		now:         cfg.Now,
		idGenerator: cfg.IDGenerator,
	}, nil
}

// errConcurrent is returned when a session lock is already held.
func errConcurrent(sessionID string) error {
	return apperrors.WithMetadata(
		apperrors.CodeSessionConcurrentModification,
		"session is being modified by another request",
		map[string]string{"SessionID": sessionID},
	)
}

// QuestionView is the question payload handed to callers.
type QuestionView struct {
	ID      string
	Content string
}

// Snapshot is a read-only view of session state plus the operations the
// presenting credential may still perform.
type Snapshot struct {
	Session             session.Session
	PermittedOperations []credential.Operation
}

// SubmitResult is the outcome of one response submission: either the next
// question or a terminal marker.
type SubmitResult struct {
	Session      session.Session
	NextQuestion *QuestionView
	Terminal     bool
	EndReason    session.EndReason
}

// ScheduleSession books a new interview session.
func (s *Service) ScheduleSession(ctx context.Context, input session.ScheduleInput) (session.Session, error) {
	if s.directory != nil {
		status, err := s.directory.CandidateStatus(ctx, strings.TrimSpace(input.CandidateID))
		if err != nil {
			return session.Session{}, fmt.Errorf("resolve candidate status: %w", err)
		}
		if !candidate.CanSchedule(status) {
			return session.Session{}, apperrors.WithMetadata(
				apperrors.CodeCandidateNotSchedulable,
				fmt.Sprintf("candidate in status %s cannot be scheduled", status.Label()),
				map[string]string{"CandidateStatus": status.Label()},
			)
		}
	}

	created, err := session.Schedule(input, s.now, s.idGenerator)
	if err != nil {
		return session.Session{}, err
	}

	created.RoomURL = s.provisionRoom(ctx, created.ID)

	if err := s.sessions.PutSession(ctx, created); err != nil {
		return session.Session{}, fmt.Errorf("persist session: %w", err)
	}

	log.Printf("session scheduled session_id=%s candidate_id=%s recruiter_id=%s start=%s",
		created.ID, created.CandidateID, created.RecruiterID, created.ScheduledStartAt.Format(time.RFC3339))
	if s.notifier != nil {
		s.notifier.SessionScheduled(ctx, created)
	}
	return created, nil
}

// provisionRoom asks the room provider for a URL, falling back to a
// generated handle when the provider is absent or fails.
func (s *Service) provisionRoom(ctx context.Context, sessionID string) string {
	if s.rooms != nil {
		roomURL, err := s.rooms.ProvisionRoom(ctx, sessionID)
		if err == nil && strings.TrimSpace(roomURL) != "" {
			return roomURL
		}
		if err != nil {
			log.Printf("provision room session_id=%s: %v", sessionID, err)
		}
	}
	return "caliper://rooms/" + sessionID
}

// IssueCredential mints a session credential after checking the subject
// matches the session's participant for that role.
func (s *Service) IssueCredential(ctx context.Context, input credential.IssueInput) (string, credential.Claims, error) {
	record, err := s.sessions.GetSession(ctx, strings.TrimSpace(input.SessionID))
	if err != nil {
		return "", credential.Claims{}, err
	}

	subjectID := strings.TrimSpace(input.SubjectID)
	switch input.Role {
	case credential.RoleRecruiter:
		if subjectID != record.RecruiterID {
			return "", credential.Claims{}, apperrors.New(apperrors.CodeCredentialMismatch, "subject is not the session recruiter")
		}
	case credential.RoleCandidate:
		if subjectID != record.CandidateID {
			return "", credential.Claims{}, apperrors.New(apperrors.CodeCredentialMismatch, "subject is not the session candidate")
		}
	}

	token, claims, err := credential.Issue(input, s.issuerCfg)
	if err != nil {
		return "", credential.Claims{}, err
	}
	log.Printf("credential issued session_id=%s role=%s subject_id=%s jti=%s",
		claims.SessionID, claims.Role.Label(), claims.SubjectID, claims.JWTID)
	return token, claims, nil
}

// authorize verifies the credential against the session and checks the
// operation against the role capability table.
func (s *Service) authorize(ctx context.Context, token, sessionID string, op credential.Operation) (credential.Claims, error) {
	cfg := s.verifierCfg
	cfg.Now = s.now
	claims, err := credential.Verify(ctx, token, sessionID, cfg, s.revocations)
	if err != nil {
		return credential.Claims{}, err
	}
	if err := credential.Authorize(claims, op); err != nil {
		return credential.Claims{}, err
	}
	return claims, nil
}

// Start begins a scheduled session and issues the first question.
func (s *Service) Start(ctx context.Context, sessionID, token string) (SubmitResult, error) {
	claims, err := s.authorize(ctx, token, sessionID, credential.OperationStart)
	if err != nil {
		return SubmitResult{}, err
	}

	release := s.locks.tryAcquire(sessionID)
	if release == nil {
		return SubmitResult{}, errConcurrent(sessionID)
	}
	defer release()

	record, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, err
	}

	started, err := session.Start(record, s.now, s.windows.StartGrace)
	if err != nil {
		return SubmitResult{}, err
	}

	pool, err := s.bank.Pool(ctx, started.JobRole, started.Technologies)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("load question pool: %w", err)
	}
	first, err := irt.SelectNext(irt.Estimate{Theta: started.Theta, StandardError: started.StandardError, Information: started.Information}, pool, nil)
	if err != nil {
		return SubmitResult{}, err
	}
	started, err = session.IssueQuestion(started, first.ID, s.now)
	if err != nil {
		return SubmitResult{}, err
	}

	if err := s.sessions.PutSession(ctx, started); err != nil {
		return SubmitResult{}, fmt.Errorf("persist session: %w", err)
	}

	log.Printf("session started session_id=%s by=%s first_question=%s", started.ID, claims.Role.Label(), first.ID)
	if s.notifier != nil {
		s.notifier.SessionStarted(ctx, started)
	}
	return SubmitResult{
		Session:      started,
		NextQuestion: &QuestionView{ID: first.ID, Content: first.Content},
	}, nil
}

// SubmitResponse scores one answer, updates the ability estimate, and either
// issues the next question or completes the session.
func (s *Service) SubmitResponse(ctx context.Context, sessionID, token, questionID string, score float64) (SubmitResult, error) {
	claims, err := s.authorize(ctx, token, sessionID, credential.OperationSubmitResponse)
	if err != nil {
		return SubmitResult{}, err
	}

	release := s.locks.tryAcquire(sessionID)
	if release == nil {
		return SubmitResult{}, errConcurrent(sessionID)
	}
	defer release()

	record, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	if record.Status != session.StatusInProgress {
		return SubmitResult{}, apperrors.WithMetadata(
			apperrors.CodeSessionInvalidTransition,
			fmt.Sprintf("cannot submit a response while %s", record.Status.Label()),
			map[string]string{"FromStatus": record.Status.Label()},
		)
	}
	questionID = strings.TrimSpace(questionID)
	if questionID == "" || questionID != record.CurrentQuestionID {
		return SubmitResult{}, apperrors.WithMetadata(
			apperrors.CodeSessionQuestionMismatch,
			"response does not answer the current question",
			map[string]string{"QuestionID": questionID, "CurrentQuestionID": record.CurrentQuestionID},
		)
	}

	pool, err := s.bank.Pool(ctx, record.JobRole, record.Technologies)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("load question pool: %w", err)
	}
	answered, ok := findQuestion(pool, questionID)
	if !ok {
		return SubmitResult{}, apperrors.WithMetadata(
			apperrors.CodeQuestionInvalidParameters,
			"answered question is no longer in the pool",
			map[string]string{"QuestionID": questionID},
		)
	}

	estimate := irt.Estimate{Theta: record.Theta, StandardError: record.StandardError, Information: record.Information}
	updated, err := irt.UpdateAbility(estimate, answered, score, s.estimator)
	if err != nil {
		return SubmitResult{}, err
	}
	record = session.ApplyEstimate(record, updated.Theta, updated.StandardError, updated.Information, s.now)

	response := storage.ResponseRecord{
		SessionID:          record.ID,
		Position:           len(record.AskedQuestionIDs),
		QuestionID:         questionID,
		Score:              score,
		ThetaAfter:         updated.Theta,
		StandardErrorAfter: updated.StandardError,
		AnsweredAt:         s.now().UTC(),
	}

	stop, stopReason := irt.EvaluateStopping(len(record.AskedQuestionIDs), record.MinQuestions, record.MaxQuestions, updated.StandardError, s.estimator)
	if stop {
		return s.finishResponse(ctx, record, response, endReasonForStop(stopReason))
	}

	next, err := irt.SelectNext(updated, pool, record.AskedQuestionIDs)
	if errors.Is(err, irt.ErrPoolExhausted) {
		log.Printf("question pool exhausted session_id=%s asked=%d", record.ID, len(record.AskedQuestionIDs))
		if len(record.AskedQuestionIDs) >= record.MinQuestions {
			return s.finishResponse(ctx, record, response, session.EndReasonPoolExhausted)
		}
		faulted, faultErr := session.ReportFault(record, s.now)
		if faultErr != nil {
			return SubmitResult{}, faultErr
		}
		if saveErr := s.sessions.SaveResponse(ctx, faulted, response); saveErr != nil {
			return SubmitResult{}, fmt.Errorf("persist response: %w", saveErr)
		}
		return SubmitResult{}, err
	}
	if err != nil {
		return SubmitResult{}, err
	}

	record, err = session.IssueQuestion(record, next.ID, s.now)
	if err != nil {
		return SubmitResult{}, err
	}
	if err := s.sessions.SaveResponse(ctx, record, response); err != nil {
		return SubmitResult{}, fmt.Errorf("persist response: %w", err)
	}

	log.Printf("response accepted session_id=%s subject_id=%s question=%s asked=%d se=%.3f",
		record.ID, claims.SubjectID, questionID, len(record.AskedQuestionIDs), record.StandardError)
	return SubmitResult{
		Session:      record,
		NextQuestion: &QuestionView{ID: next.ID, Content: next.Content},
	}, nil
}

// finishResponse completes the session and persists the final response in
// the same transaction, then revokes the session's credentials.
func (s *Service) finishResponse(ctx context.Context, record session.Session, response storage.ResponseRecord, reason session.EndReason) (SubmitResult, error) {
	completed, err := session.Complete(record, reason, s.now)
	if err != nil {
		return SubmitResult{}, err
	}
	if err := s.sessions.SaveResponse(ctx, completed, response); err != nil {
		return SubmitResult{}, fmt.Errorf("persist response: %w", err)
	}
	s.revokeCredentials(ctx, completed.ID)
	log.Printf("session completed session_id=%s reason=%s asked=%d theta=%.3f se=%.3f",
		completed.ID, reason.Label(), len(completed.AskedQuestionIDs), completed.Theta, completed.StandardError)
	return SubmitResult{Session: completed, Terminal: true, EndReason: reason}, nil
}

func endReasonForStop(reason irt.StopReason) session.EndReason {
	if reason == irt.StopReasonMaxQuestions {
		return session.EndReasonMaxQuestions
	}
	return session.EndReasonPrecision
}

func findQuestion(pool []question.Question, questionID string) (question.Question, bool) {
	for _, q := range pool {
		if q.ID == questionID {
			return q, true
		}
	}
	return question.Question{}, false
}

// mutate runs one serialized lifecycle transition and persists the result.
func (s *Service) mutate(ctx context.Context, sessionID string, transition func(session.Session) (session.Session, error)) (session.Session, error) {
	release := s.locks.tryAcquire(sessionID)
	if release == nil {
		return session.Session{}, errConcurrent(sessionID)
	}
	defer release()

	record, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return session.Session{}, err
	}
	updated, err := transition(record)
	if err != nil {
		return session.Session{}, err
	}
	if err := s.sessions.PutSession(ctx, updated); err != nil {
		return session.Session{}, fmt.Errorf("persist session: %w", err)
	}
	return updated, nil
}

// Pause suspends an in-progress session.
func (s *Service) Pause(ctx context.Context, sessionID, token string) (session.Session, error) {
	if _, err := s.authorize(ctx, token, sessionID, credential.OperationPause); err != nil {
		return session.Session{}, err
	}
	updated, err := s.mutate(ctx, sessionID, func(record session.Session) (session.Session, error) {
		return session.Pause(record, s.now)
	})
	if err != nil {
		return session.Session{}, err
	}
	log.Printf("session paused session_id=%s", updated.ID)
	return updated, nil
}

// Resume returns a paused or faulted session to progress.
func (s *Service) Resume(ctx context.Context, sessionID, token string) (session.Session, error) {
	if _, err := s.authorize(ctx, token, sessionID, credential.OperationResume); err != nil {
		return session.Session{}, err
	}
	updated, err := s.mutate(ctx, sessionID, func(record session.Session) (session.Session, error) {
		return session.Resume(record, s.now)
	})
	if err != nil {
		return session.Session{}, err
	}
	log.Printf("session resumed session_id=%s", updated.ID)
	return updated, nil
}

// Cancel cancels a scheduled session and revokes its credentials.
func (s *Service) Cancel(ctx context.Context, sessionID, token string) (session.Session, error) {
	if _, err := s.authorize(ctx, token, sessionID, credential.OperationCancel); err != nil {
		return session.Session{}, err
	}
	updated, err := s.mutate(ctx, sessionID, func(record session.Session) (session.Session, error) {
		return session.Cancel(record, s.now)
	})
	if err != nil {
		return session.Session{}, err
	}
	s.revokeCredentials(ctx, updated.ID)
	log.Printf("session cancelled session_id=%s", updated.ID)
	return updated, nil
}

// TerminateEarly completes an in-progress session once the minimum question
// count is met, and revokes its credentials.
func (s *Service) TerminateEarly(ctx context.Context, sessionID, token string) (session.Session, error) {
	if _, err := s.authorize(ctx, token, sessionID, credential.OperationTerminateEarly); err != nil {
		return session.Session{}, err
	}
	updated, err := s.mutate(ctx, sessionID, func(record session.Session) (session.Session, error) {
		return session.TerminateEarly(record, s.now)
	})
	if err != nil {
		return session.Session{}, err
	}
	s.revokeCredentials(ctx, updated.ID)
	log.Printf("session terminated early session_id=%s asked=%d", updated.ID, len(updated.AskedQuestionIDs))
	return updated, nil
}

// ReportFault flags a media-layer fault on a non-terminal session.
func (s *Service) ReportFault(ctx context.Context, sessionID, token string) (session.Session, error) {
	if _, err := s.authorize(ctx, token, sessionID, credential.OperationReportFault); err != nil {
		return session.Session{}, err
	}
	updated, err := s.mutate(ctx, sessionID, func(record session.Session) (session.Session, error) {
		return session.ReportFault(record, s.now)
	})
	if err != nil {
		return session.Session{}, err
	}
	log.Printf("session fault reported session_id=%s", updated.ID)
	return updated, nil
}

// GetSessionStatus returns a consistent snapshot without taking the session
// lock: reads never block writers.
func (s *Service) GetSessionStatus(ctx context.Context, sessionID, token string) (Snapshot, error) {
	claims, err := s.authorize(ctx, token, sessionID, credential.OperationGetStatus)
	if err != nil {
		return Snapshot{}, err
	}
	record, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Session:             record,
		PermittedOperations: permittedOperations(record, claims.Role),
	}, nil
}

// permittedOperations intersects the role capability table with the
// operations meaningful in the session's current status.
func permittedOperations(record session.Session, role credential.Role) []credential.Operation {
	var ops []credential.Operation
	for _, op := range role.Operations() {
		if operationOpen(record, op) {
			ops = append(ops, op)
		}
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

func operationOpen(record session.Session, op credential.Operation) bool {
	switch op {
	case credential.OperationStart:
		return record.Status == session.StatusScheduled
	case credential.OperationSubmitResponse, credential.OperationPause, credential.OperationDeliverQuestion:
		return record.Status == session.StatusInProgress
	case credential.OperationResume:
		return record.Status == session.StatusPaused || record.Status == session.StatusTechnicalIssues
	case credential.OperationCancel:
		return record.Status == session.StatusScheduled
	case credential.OperationTerminateEarly:
		return record.Status == session.StatusInProgress && len(record.AskedQuestionIDs) >= record.MinQuestions
	case credential.OperationReportFault:
		return !record.Status.IsTerminal() && record.Status != session.StatusTechnicalIssues
	case credential.OperationGetStatus, credential.OperationGetAnalytics:
		return true
	default:
		return false
	}
}

// DeliverQuestion returns the current question for the AI interviewer to
// read out. It does not mutate session state.
func (s *Service) DeliverQuestion(ctx context.Context, sessionID, token string) (QuestionView, error) {
	if _, err := s.authorize(ctx, token, sessionID, credential.OperationDeliverQuestion); err != nil {
		return QuestionView{}, err
	}
	record, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return QuestionView{}, err
	}
	if record.Status != session.StatusInProgress || record.CurrentQuestionID == "" {
		return QuestionView{}, apperrors.WithMetadata(
			apperrors.CodeSessionInvalidTransition,
			fmt.Sprintf("no question to deliver while %s", record.Status.Label()),
			map[string]string{"FromStatus": record.Status.Label()},
		)
	}
	pool, err := s.bank.Pool(ctx, record.JobRole, record.Technologies)
	if err != nil {
		return QuestionView{}, fmt.Errorf("load question pool: %w", err)
	}
	current, ok := findQuestion(pool, record.CurrentQuestionID)
	if !ok {
		return QuestionView{}, apperrors.WithMetadata(
			apperrors.CodeQuestionInvalidParameters,
			"current question is no longer in the pool",
			map[string]string{"QuestionID": record.CurrentQuestionID},
		)
	}
	return QuestionView{ID: current.ID, Content: current.Content}, nil
}

// revokeCredentials marks the session's credentials revoked. Failures are
// logged: the session transition already happened and must not roll back.
func (s *Service) revokeCredentials(ctx context.Context, sessionID string) {
	if err := s.revocations.RevokeSession(ctx, sessionID, s.now().UTC()); err != nil {
		log.Printf("revoke session credentials session_id=%s: %v", sessionID, err)
	}
}
