package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/caliperhq/caliper/internal/platform/errors"
	"github.com/caliperhq/caliper/internal/services/interview/app"
	"github.com/caliperhq/caliper/internal/services/interview/domain/credential"
	"github.com/caliperhq/caliper/internal/services/interview/domain/session"
)

// sessionView is the JSON shape of a session returned to callers.
type sessionView struct {
	ID                string   `json:"id"`
	CandidateID       string   `json:"candidate_id"`
	RecruiterID       string   `json:"recruiter_id"`
	JobRole           string   `json:"job_role"`
	Technologies      []string `json:"technologies,omitempty"`
	Status            string   `json:"status"`
	EndReason         string   `json:"end_reason,omitempty"`
	Theta             float64  `json:"theta"`
	StandardError     float64  `json:"standard_error"`
	MinQuestions      int      `json:"min_questions"`
	MaxQuestions      int      `json:"max_questions"`
	AskedQuestions    int      `json:"asked_questions"`
	CurrentQuestionID string   `json:"current_question_id,omitempty"`
	RoomURL           string   `json:"room_url,omitempty"`
	ScheduledStartAt  string   `json:"scheduled_start_at"`
	ActualStartAt     string   `json:"actual_start_at,omitempty"`
	EndedAt           string   `json:"ended_at,omitempty"`
}

func toSessionView(s session.Session) sessionView {
	view := sessionView{
		ID:                s.ID,
		CandidateID:       s.CandidateID,
		RecruiterID:       s.RecruiterID,
		JobRole:           s.JobRole,
		Technologies:      s.Technologies,
		Status:            s.Status.Label(),
		Theta:             s.Theta,
		StandardError:     s.StandardError,
		MinQuestions:      s.MinQuestions,
		MaxQuestions:      s.MaxQuestions,
		AskedQuestions:    len(s.AskedQuestionIDs),
		CurrentQuestionID: s.CurrentQuestionID,
		RoomURL:           s.RoomURL,
		ScheduledStartAt:  s.ScheduledStartAt.Format(time.RFC3339),
	}
	if s.EndReason != session.EndReasonUnspecified {
		view.EndReason = s.EndReason.Label()
	}
	if s.ActualStartAt != nil {
		view.ActualStartAt = s.ActualStartAt.Format(time.RFC3339)
	}
	if s.EndedAt != nil {
		view.EndedAt = s.EndedAt.Format(time.RFC3339)
	}
	return view
}

type questionView struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// submitView is the response to start and submit-response calls: either the
// next question or a terminal marker.
type submitView struct {
	Session      sessionView   `json:"session"`
	NextQuestion *questionView `json:"next_question,omitempty"`
	Terminal     bool          `json:"terminal"`
	EndReason    string        `json:"end_reason,omitempty"`
}

func toSubmitView(result app.SubmitResult) submitView {
	view := submitView{
		Session:  toSessionView(result.Session),
		Terminal: result.Terminal,
	}
	if result.NextQuestion != nil {
		view.NextQuestion = &questionView{ID: result.NextQuestion.ID, Content: result.NextQuestion.Content}
	}
	if result.Terminal {
		view.EndReason = result.EndReason.Label()
	}
	return view
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scheduleRequest struct {
	CandidateID      string   `json:"candidate_id"`
	RecruiterID      string   `json:"recruiter_id"`
	JobRole          string   `json:"job_role"`
	Technologies     []string `json:"technologies"`
	ScheduledStartAt string   `json:"scheduled_start_at"`
	MinQuestions     int      `json:"min_questions"`
	MaxQuestions     int      `json:"max_questions"`
}

func (s *Server) handleScheduleSession(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	startAt, err := time.Parse(time.RFC3339, req.ScheduledStartAt)
	if err != nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidRequest, "scheduled_start_at must be RFC 3339"))
		return
	}

	created, err := s.service.ScheduleSession(r.Context(), session.ScheduleInput{
		CandidateID:      req.CandidateID,
		RecruiterID:      req.RecruiterID,
		JobRole:          req.JobRole,
		Technologies:     req.Technologies,
		ScheduledStartAt: startAt,
		MinQuestions:     req.MinQuestions,
		MaxQuestions:     req.MaxQuestions,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionView(created))
}

type issueCredentialRequest struct {
	SubjectID string `json:"subject_id"`
	Role      string `json:"role"`
}

type issueCredentialResponse struct {
	Token     string `json:"token"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

func (s *Server) handleIssueCredential(w http.ResponseWriter, r *http.Request) {
	var req issueCredentialRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	role, err := credential.RoleFromLabel(req.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	token, claims, err := s.service.IssueCredential(r.Context(), credential.IssueInput{
		SubjectID: req.SubjectID,
		Role:      role,
		SessionID: chi.URLParam(r, "sessionID"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issueCredentialResponse{
		Token:     token,
		Role:      claims.Role.Label(),
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Start(r.Context(), chi.URLParam(r, "sessionID"), bearerToken(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmitView(result))
}

type submitResponseRequest struct {
	QuestionID string  `json:"question_id"`
	Score      float64 `json:"score"`
}

func (s *Server) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	var req submitResponseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := s.service.SubmitResponse(r.Context(), chi.URLParam(r, "sessionID"), bearerToken(r), req.QuestionID, req.Score)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmitView(result))
}

// lifecycle wraps the pause/resume/cancel/terminate/fault family, which all
// share the same request and response shape.
func (s *Server) lifecycle(call func(r *http.Request) (session.Session, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		updated, err := call(r)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionView(updated))
	}
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(func(r *http.Request) (session.Session, error) {
		return s.service.Pause(r.Context(), chi.URLParam(r, "sessionID"), bearerToken(r))
	})(w, r)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(func(r *http.Request) (session.Session, error) {
		return s.service.Resume(r.Context(), chi.URLParam(r, "sessionID"), bearerToken(r))
	})(w, r)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(func(r *http.Request) (session.Session, error) {
		return s.service.Cancel(r.Context(), chi.URLParam(r, "sessionID"), bearerToken(r))
	})(w, r)
}

func (s *Server) handleTerminateEarly(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(func(r *http.Request) (session.Session, error) {
		return s.service.TerminateEarly(r.Context(), chi.URLParam(r, "sessionID"), bearerToken(r))
	})(w, r)
}

func (s *Server) handleReportFault(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(func(r *http.Request) (session.Session, error) {
		return s.service.ReportFault(r.Context(), chi.URLParam(r, "sessionID"), bearerToken(r))
	})(w, r)
}

type statusResponse struct {
	Session             sessionView `json:"session"`
	PermittedOperations []string    `json:"permitted_operations"`
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.service.GetSessionStatus(r.Context(), chi.URLParam(r, "sessionID"), bearerToken(r))
	if err != nil {
		writeError(w, err)
		return
	}
	ops := make([]string, 0, len(snapshot.PermittedOperations))
	for _, op := range snapshot.PermittedOperations {
		ops = append(ops, string(op))
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Session:             toSessionView(snapshot.Session),
		PermittedOperations: ops,
	})
}

func (s *Server) handleDeliverQuestion(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.DeliverQuestion(r.Context(), chi.URLParam(r, "sessionID"), bearerToken(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questionView{ID: view.ID, Content: view.Content})
}

type analyticsResponse struct {
	SessionID               string    `json:"session_id"`
	Status                  string    `json:"status"`
	EndReason               string    `json:"end_reason,omitempty"`
	Theta                   float64   `json:"theta"`
	StandardError           float64   `json:"standard_error"`
	Responses               int       `json:"responses"`
	MeanScore               float64   `json:"mean_score"`
	MedianScore             float64   `json:"median_score"`
	MinScore                float64   `json:"min_score"`
	MaxScore                float64   `json:"max_score"`
	ScoreStdDev             float64   `json:"score_std_dev"`
	StandardErrorTrajectory []float64 `json:"standard_error_trajectory,omitempty"`
}

func (s *Server) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.GetAnalytics(r.Context(), chi.URLParam(r, "sessionID"), bearerToken(r))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := analyticsResponse{
		SessionID:               summary.SessionID,
		Status:                  summary.Status.Label(),
		Theta:                   summary.Theta,
		StandardError:           summary.StandardError,
		Responses:               summary.Responses,
		MeanScore:               summary.MeanScore,
		MedianScore:             summary.MedianScore,
		MinScore:                summary.MinScore,
		MaxScore:                summary.MaxScore,
		ScoreStdDev:             summary.ScoreStdDev,
		StandardErrorTrajectory: summary.StandardErrorTrajectory,
	}
	if summary.EndReason != session.EndReasonUnspecified {
		resp.EndReason = summary.EndReason.Label()
	}
	writeJSON(w, http.StatusOK, resp)
}
