package session

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/caliperhq/caliper/internal/platform/errors"
)

func fixedNow() time.Time {
	return time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
}

func validInput() ScheduleInput {
	return ScheduleInput{
		CandidateID:      "cand-1",
		RecruiterID:      "rec-1",
		JobRole:          "backend-engineer",
		Technologies:     []string{"go", "postgres"},
		ScheduledStartAt: fixedNow().Add(time.Hour),
		MinQuestions:     5,
		MaxQuestions:     10,
	}
}

func scheduled(t *testing.T) Session {
	t.Helper()
	s, err := Schedule(validInput(), fixedNow, func() (string, error) { return "sess-1", nil })
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	return s
}

func inProgress(t *testing.T) Session {
	t.Helper()
	s := scheduled(t)
	startAt := func() time.Time { return s.ScheduledStartAt }
	started, err := Start(s, startAt, 5*time.Minute)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return started
}

func TestSchedule(t *testing.T) {
	s := scheduled(t)

	if s.ID != "sess-1" {
		t.Fatalf("ID = %q, want sess-1", s.ID)
	}
	if s.Status != StatusScheduled {
		t.Fatalf("Status = %v, want StatusScheduled", s.Status)
	}
	if s.StandardError != 1.0 {
		t.Fatalf("StandardError = %v, want 1.0", s.StandardError)
	}
	if s.Theta != 0 {
		t.Fatalf("Theta = %v, want 0", s.Theta)
	}
	if !s.CreatedAt.Equal(fixedNow()) || !s.UpdatedAt.Equal(fixedNow()) {
		t.Fatalf("timestamps = %v/%v, want %v", s.CreatedAt, s.UpdatedAt, fixedNow())
	}
}

func TestScheduleValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*ScheduleInput)
		wantCode apperrors.Code
	}{
		{
			name:     "empty candidate",
			mutate:   func(in *ScheduleInput) { in.CandidateID = "  " },
			wantCode: apperrors.CodeSessionEmptyCandidateID,
		},
		{
			name:     "empty recruiter",
			mutate:   func(in *ScheduleInput) { in.RecruiterID = "" },
			wantCode: apperrors.CodeSessionEmptyRecruiterID,
		},
		{
			name:     "empty job role",
			mutate:   func(in *ScheduleInput) { in.JobRole = "" },
			wantCode: apperrors.CodeSessionEmptyJobRole,
		},
		{
			name:     "min greater than max",
			mutate:   func(in *ScheduleInput) { in.MinQuestions = 11 },
			wantCode: apperrors.CodeSessionInvalidQuestionBounds,
		},
		{
			name:     "zero max",
			mutate:   func(in *ScheduleInput) { in.MinQuestions = 0; in.MaxQuestions = 0 },
			wantCode: apperrors.CodeSessionInvalidQuestionBounds,
		},
		{
			name:     "start in the past",
			mutate:   func(in *ScheduleInput) { in.ScheduledStartAt = fixedNow().Add(-time.Minute) },
			wantCode: apperrors.CodeSessionInvalidSchedule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.mutate(&input)
			_, err := Schedule(input, fixedNow, nil)
			if apperrors.CodeOf(err) != tt.wantCode {
				t.Fatalf("Schedule() error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestStart(t *testing.T) {
	s := scheduled(t)

	startAt := func() time.Time { return s.ScheduledStartAt.Add(-2 * time.Minute) }
	started, err := Start(s, startAt, 5*time.Minute)
	if err != nil {
		t.Fatalf("Start() within grace error = %v", err)
	}
	if started.Status != StatusInProgress {
		t.Fatalf("Status = %v, want StatusInProgress", started.Status)
	}
	if started.ActualStartAt == nil || !started.ActualStartAt.Equal(startAt()) {
		t.Fatalf("ActualStartAt = %v, want %v", started.ActualStartAt, startAt())
	}
}

func TestStartBeforeWindow(t *testing.T) {
	s := scheduled(t)

	early := func() time.Time { return s.ScheduledStartAt.Add(-10 * time.Minute) }
	_, err := Start(s, early, 5*time.Minute)
	if apperrors.CodeOf(err) != apperrors.CodeSessionStartBeforeWindow {
		t.Fatalf("Start() early error = %v, want CodeSessionStartBeforeWindow", err)
	}
}

func TestStartTwice(t *testing.T) {
	started := inProgress(t)

	_, err := Start(started, fixedNow, 5*time.Minute)
	if apperrors.CodeOf(err) != apperrors.CodeSessionInvalidTransition {
		t.Fatalf("second Start() error = %v, want CodeSessionInvalidTransition", err)
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("second Start() error type = %T, want *apperrors.Error", err)
	}
	if appErr.Metadata["FromStatus"] != "IN_PROGRESS" {
		t.Fatalf("FromStatus = %q, want IN_PROGRESS", appErr.Metadata["FromStatus"])
	}
}

func TestPauseResume(t *testing.T) {
	started := inProgress(t)

	paused, err := Pause(started, fixedNow)
	if err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if paused.Status != StatusPaused || paused.PausedAt == nil {
		t.Fatalf("Pause() = status %v pausedAt %v", paused.Status, paused.PausedAt)
	}

	resumed, err := Resume(paused, fixedNow)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Status != StatusInProgress || resumed.PausedAt != nil {
		t.Fatalf("Resume() = status %v pausedAt %v", resumed.Status, resumed.PausedAt)
	}
}

func TestResumeFromFault(t *testing.T) {
	started := inProgress(t)

	faulted, err := ReportFault(started, fixedNow)
	if err != nil {
		t.Fatalf("ReportFault() error = %v", err)
	}
	if faulted.Status != StatusTechnicalIssues || faulted.FaultedAt == nil {
		t.Fatalf("ReportFault() = status %v faultedAt %v", faulted.Status, faulted.FaultedAt)
	}

	resumed, err := Resume(faulted, fixedNow)
	if err != nil {
		t.Fatalf("Resume() from fault error = %v", err)
	}
	if resumed.Status != StatusInProgress || resumed.FaultedAt != nil {
		t.Fatalf("Resume() = status %v faultedAt %v", resumed.Status, resumed.FaultedAt)
	}
}

func TestCancel(t *testing.T) {
	s := scheduled(t)

	cancelled, err := Cancel(s, fixedNow)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != StatusCancelled || cancelled.EndReason != EndReasonCancelled {
		t.Fatalf("Cancel() = status %v reason %v", cancelled.Status, cancelled.EndReason)
	}

	started := inProgress(t)
	if _, err := Cancel(started, fixedNow); apperrors.CodeOf(err) != apperrors.CodeSessionInvalidTransition {
		t.Fatalf("Cancel() in progress error = %v, want CodeSessionInvalidTransition", err)
	}
}

func TestComplete(t *testing.T) {
	started := inProgress(t)
	started.CurrentQuestionID = "q-3"

	completed, err := Complete(started, EndReasonPrecision, fixedNow)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if completed.Status != StatusCompleted || completed.EndReason != EndReasonPrecision {
		t.Fatalf("Complete() = status %v reason %v", completed.Status, completed.EndReason)
	}
	if completed.CurrentQuestionID != "" {
		t.Fatalf("CurrentQuestionID = %q, want empty after completion", completed.CurrentQuestionID)
	}
	if completed.EndedAt == nil {
		t.Fatal("EndedAt not set")
	}
}

func TestTerminateEarly(t *testing.T) {
	started := inProgress(t)
	started.AskedQuestionIDs = []string{"q-1", "q-2", "q-3"}

	_, err := TerminateEarly(started, fixedNow)
	if apperrors.CodeOf(err) != apperrors.CodeSessionMinQuestionsNotMet {
		t.Fatalf("TerminateEarly() below min error = %v, want CodeSessionMinQuestionsNotMet", err)
	}

	started.AskedQuestionIDs = []string{"q-1", "q-2", "q-3", "q-4", "q-5"}
	terminated, err := TerminateEarly(started, fixedNow)
	if err != nil {
		t.Fatalf("TerminateEarly() error = %v", err)
	}
	if terminated.EndReason != EndReasonTerminatedEarly {
		t.Fatalf("EndReason = %v, want EndReasonTerminatedEarly", terminated.EndReason)
	}
}

func TestTerminalStatusesRejectTransitions(t *testing.T) {
	started := inProgress(t)
	completed, err := Complete(started, EndReasonMaxQuestions, fixedNow)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if _, err := Pause(completed, fixedNow); apperrors.CodeOf(err) != apperrors.CodeSessionInvalidTransition {
		t.Fatalf("Pause() after completion error = %v", err)
	}
	if _, err := ReportFault(completed, fixedNow); apperrors.CodeOf(err) != apperrors.CodeSessionInvalidTransition {
		t.Fatalf("ReportFault() after completion error = %v", err)
	}
	if _, err := Expire(completed, fixedNow); apperrors.CodeOf(err) != apperrors.CodeSessionInvalidTransition {
		t.Fatalf("Expire() after completion error = %v", err)
	}
}

func TestExpiryDue(t *testing.T) {
	windows := DefaultWindows()
	s := scheduled(t)

	tests := []struct {
		name string
		prep func() Session
		at   time.Time
		want bool
	}{
		{
			name: "scheduled before window",
			prep: func() Session { return s },
			at:   s.ScheduledStartAt.Add(windows.ScheduledExpiry - time.Minute),
			want: false,
		},
		{
			name: "scheduled past window",
			prep: func() Session { return s },
			at:   s.ScheduledStartAt.Add(windows.ScheduledExpiry + time.Minute),
			want: true,
		},
		{
			name: "paused past window",
			prep: func() Session {
				paused, err := Pause(inProgress(t), fixedNow)
				if err != nil {
					t.Fatalf("Pause() error = %v", err)
				}
				return paused
			},
			at:   fixedNow().Add(windows.PauseTimeout + time.Minute),
			want: true,
		},
		{
			name: "faulted past window",
			prep: func() Session {
				faulted, err := ReportFault(inProgress(t), fixedNow)
				if err != nil {
					t.Fatalf("ReportFault() error = %v", err)
				}
				return faulted
			},
			at:   fixedNow().Add(windows.FaultTimeout + time.Minute),
			want: true,
		},
		{
			name: "in progress never due",
			prep: func() Session { return inProgress(t) },
			at:   fixedNow().Add(24 * time.Hour),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpiryDue(tt.prep(), tt.at, windows); got != tt.want {
				t.Fatalf("ExpiryDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpire(t *testing.T) {
	paused, err := Pause(inProgress(t), fixedNow)
	if err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	paused.CurrentQuestionID = "q-2"

	expired, err := Expire(paused, fixedNow)
	if err != nil {
		t.Fatalf("Expire() error = %v", err)
	}
	if expired.Status != StatusExpired || expired.EndReason != EndReasonTimeout {
		t.Fatalf("Expire() = status %v reason %v", expired.Status, expired.EndReason)
	}
	if expired.CurrentQuestionID != "" {
		t.Fatalf("CurrentQuestionID = %q, want empty", expired.CurrentQuestionID)
	}
}

func TestIssueQuestion(t *testing.T) {
	started := inProgress(t)

	issued, err := IssueQuestion(started, "q-1", fixedNow)
	if err != nil {
		t.Fatalf("IssueQuestion() error = %v", err)
	}
	if issued.CurrentQuestionID != "q-1" {
		t.Fatalf("CurrentQuestionID = %q, want q-1", issued.CurrentQuestionID)
	}
	if len(issued.AskedQuestionIDs) != 1 || issued.AskedQuestionIDs[0] != "q-1" {
		t.Fatalf("AskedQuestionIDs = %v, want [q-1]", issued.AskedQuestionIDs)
	}

	if _, err := IssueQuestion(issued, "q-1", fixedNow); err == nil {
		t.Fatal("IssueQuestion() duplicate did not fail")
	}

	full := started
	full.AskedQuestionIDs = []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	if _, err := IssueQuestion(full, "q-extra", fixedNow); err == nil {
		t.Fatal("IssueQuestion() over limit did not fail")
	}
}

func TestStatusLabelRoundTrip(t *testing.T) {
	statuses := []Status{
		StatusScheduled, StatusInProgress, StatusPaused,
		StatusCompleted, StatusCancelled, StatusExpired, StatusTechnicalIssues,
	}
	for _, status := range statuses {
		parsed, err := StatusFromLabel(status.Label())
		if err != nil {
			t.Fatalf("StatusFromLabel(%q) error = %v", status.Label(), err)
		}
		if parsed != status {
			t.Fatalf("StatusFromLabel(%q) = %v, want %v", status.Label(), parsed, status)
		}
	}

	if _, err := StatusFromLabel("bogus"); err == nil {
		t.Fatal("StatusFromLabel(bogus) did not fail")
	}
	if _, err := StatusFromLabel(""); err == nil {
		t.Fatal("StatusFromLabel(empty) did not fail")
	}
}
