package irt

import (
	"math"
	"testing"

	apperrors "github.com/caliperhq/caliper/internal/platform/errors"
	"github.com/caliperhq/caliper/internal/services/interview/domain/question"
)

func item(id string, difficulty, discrimination float64) question.Question {
	return question.Question{
		ID:             id,
		Content:        "content for " + id,
		JobRole:        "backend-engineer",
		Difficulty:     difficulty,
		Discrimination: discrimination,
	}
}

func TestProbability(t *testing.T) {
	q := item("q-1", 0, 1)

	if got := Probability(q, 0); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("Probability(theta=difficulty) = %v, want 0.5", got)
	}
	if got := Probability(q, 4); got <= 0.9 {
		t.Fatalf("Probability(theta far above) = %v, want > 0.9", got)
	}
	if got := Probability(q, -4); got >= 0.1 {
		t.Fatalf("Probability(theta far below) = %v, want < 0.1", got)
	}

	easy := Probability(item("q-2", -2, 1), 0)
	hard := Probability(item("q-3", 2, 1), 0)
	if easy <= hard {
		t.Fatalf("easy item probability %v not above hard item probability %v", easy, hard)
	}
}

func TestInformationPeaksAtDifficulty(t *testing.T) {
	q := item("q-1", 0.5, 1.2)

	atPeak := Information(q, 0.5)
	for _, theta := range []float64{-2, -1, 0, 1, 2} {
		if theta == 0.5 {
			continue
		}
		if Information(q, theta) >= atPeak {
			t.Fatalf("Information at theta=%v not below peak at item difficulty", theta)
		}
	}

	// Information at the peak is a^2 / 4.
	want := 1.2 * 1.2 / 4
	if math.Abs(atPeak-want) > 1e-9 {
		t.Fatalf("Information at peak = %v, want %v", atPeak, want)
	}
}

func TestUpdateAbilityDirection(t *testing.T) {
	cfg := DefaultConfig()
	est := NewEstimate(cfg)
	q := item("q-1", 0, 1)

	up, err := UpdateAbility(est, q, 1.0, cfg)
	if err != nil {
		t.Fatalf("UpdateAbility(correct) error = %v", err)
	}
	if up.Theta <= est.Theta {
		t.Fatalf("Theta after correct answer = %v, want above %v", up.Theta, est.Theta)
	}

	down, err := UpdateAbility(est, q, 0.0, cfg)
	if err != nil {
		t.Fatalf("UpdateAbility(incorrect) error = %v", err)
	}
	if down.Theta >= est.Theta {
		t.Fatalf("Theta after incorrect answer = %v, want below %v", down.Theta, est.Theta)
	}

	same, err := UpdateAbility(est, q, 0.5, cfg)
	if err != nil {
		t.Fatalf("UpdateAbility(midpoint) error = %v", err)
	}
	if math.Abs(same.Theta-est.Theta) > 1e-9 {
		t.Fatalf("Theta after midpoint score = %v, want unchanged %v", same.Theta, est.Theta)
	}
}

func TestStandardErrorNeverIncreases(t *testing.T) {
	cfg := DefaultConfig()
	est := NewEstimate(cfg)

	items := []struct {
		q     question.Question
		score float64
	}{
		{item("q-1", 0, 1.0), 1.0},
		{item("q-2", 0.5, 1.5), 0.0},
		{item("q-3", -0.5, 0.8), 0.7},
		{item("q-4", 1.0, 2.0), 1.0},
		{item("q-5", 0.2, 1.1), 0.3},
	}

	for _, step := range items {
		updated, err := UpdateAbility(est, step.q, step.score, cfg)
		if err != nil {
			t.Fatalf("UpdateAbility(%s) error = %v", step.q.ID, err)
		}
		if updated.StandardError > est.StandardError {
			t.Fatalf("StandardError rose from %v to %v on %s", est.StandardError, updated.StandardError, step.q.ID)
		}
		if updated.Information < est.Information {
			t.Fatalf("Information fell from %v to %v on %s", est.Information, updated.Information, step.q.ID)
		}
		est = updated
	}
}

func TestUpdateAbilityClamps(t *testing.T) {
	cfg := DefaultConfig()
	est := NewEstimate(cfg)
	est.Theta = cfg.ThetaMax

	// A correct answer on a very easy low-information item pushes theta
	// further up; the estimate must stay within bounds.
	updated, err := UpdateAbility(est, item("q-1", -3, 0.2), 1.0, cfg)
	if err != nil {
		t.Fatalf("UpdateAbility() error = %v", err)
	}
	if updated.Theta > cfg.ThetaMax {
		t.Fatalf("Theta = %v, want at most %v", updated.Theta, cfg.ThetaMax)
	}

	est = NewEstimate(cfg)
	est.Theta = cfg.ThetaMin
	updated, err = UpdateAbility(est, item("q-2", 3, 0.2), 0.0, cfg)
	if err != nil {
		t.Fatalf("UpdateAbility() error = %v", err)
	}
	if updated.Theta < cfg.ThetaMin {
		t.Fatalf("Theta = %v, want at least %v", updated.Theta, cfg.ThetaMin)
	}
}

func TestUpdateAbilityValidation(t *testing.T) {
	cfg := DefaultConfig()
	est := NewEstimate(cfg)

	if _, err := UpdateAbility(est, item("q-1", 0, 0), 0.5, cfg); apperrors.CodeOf(err) != apperrors.CodeQuestionInvalidParameters {
		t.Fatalf("UpdateAbility(zero discrimination) error = %v, want CodeQuestionInvalidParameters", err)
	}
	if _, err := UpdateAbility(est, item("q-1", 0, 1), -0.1, cfg); apperrors.CodeOf(err) != apperrors.CodeQuestionInvalidScore {
		t.Fatalf("UpdateAbility(negative score) error = %v, want CodeQuestionInvalidScore", err)
	}
	if _, err := UpdateAbility(est, item("q-1", 0, 1), 1.1, cfg); apperrors.CodeOf(err) != apperrors.CodeQuestionInvalidScore {
		t.Fatalf("UpdateAbility(score above one) error = %v, want CodeQuestionInvalidScore", err)
	}
}

func TestNewEstimateDefaults(t *testing.T) {
	est := NewEstimate(Config{})
	if est.Theta != 0 || est.StandardError != 1.0 || est.Information != 0 {
		t.Fatalf("NewEstimate(zero config) = %+v, want defaults", est)
	}
}
