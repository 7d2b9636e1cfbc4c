package irt

import (
	apperrors "github.com/caliperhq/caliper/internal/platform/errors"
	"github.com/caliperhq/caliper/internal/services/interview/domain/question"
)

// ErrPoolExhausted indicates no eligible question remains in the pool.
var ErrPoolExhausted = apperrors.New(apperrors.CodeQuestionPoolExhausted, "no eligible question remains in the pool")

// SelectNext picks the unasked question carrying maximum information at the
// current ability estimate. Ties break toward the lowest question id so
// selection is deterministic.
func SelectNext(est Estimate, pool []question.Question, asked []string) (question.Question, error) {
	askedSet := make(map[string]struct{}, len(asked))
	for _, id := range asked {
		askedSet[id] = struct{}{}
	}

	var (
		best     question.Question
		bestInfo float64
		found    bool
	)
	for _, q := range pool {
		if _, already := askedSet[q.ID]; already {
			continue
		}
		info := Information(q, est.Theta)
		switch {
		case !found, info > bestInfo:
			best, bestInfo, found = q, info, true
		case info == bestInfo && q.ID < best.ID:
			best = q
		}
	}
	if !found {
		return question.Question{}, ErrPoolExhausted
	}
	return best, nil
}

// StopReason explains why the stopping rule ended a session.
type StopReason int

const (
	// StopReasonNone indicates the session should continue.
	StopReasonNone StopReason = iota
	// StopReasonMaxQuestions indicates the maximum question count was reached.
	StopReasonMaxQuestions
	// StopReasonPrecision indicates the standard error dropped below the
	// configured precision threshold with the minimum count met.
	StopReasonPrecision
)

// Label returns a stable label for a stop reason.
func (r StopReason) Label() string {
	switch r {
	case StopReasonMaxQuestions:
		return "MAX_QUESTIONS"
	case StopReasonPrecision:
		return "PRECISION_REACHED"
	default:
		return "NONE"
	}
}

// EvaluateStopping applies the stopping rule after a response, in order:
// maximum question count first, then the precision threshold once the
// minimum count is met.
func EvaluateStopping(askedCount, minQuestions, maxQuestions int, standardError float64, cfg Config) (bool, StopReason) {
	cfg = cfg.normalized()
	if askedCount >= maxQuestions {
		return true, StopReasonMaxQuestions
	}
	if askedCount >= minQuestions && standardError <= cfg.PrecisionThreshold {
		return true, StopReasonPrecision
	}
	return false, StopReasonNone
}
