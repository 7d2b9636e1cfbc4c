// Package irt implements the adaptive questioning core: two-parameter
// logistic (2PL) ability estimation, maximum-information question selection,
// and the stopping rule.
//
// All functions are pure: they take and return value types and keep no
// hidden state, so the orchestration layer can be tested independently.
package irt

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	apperrors "github.com/caliperhq/caliper/internal/platform/errors"
	"github.com/caliperhq/caliper/internal/services/interview/domain/question"
)

// Estimate is the running ability estimate for one session.
type Estimate struct {
	// Theta is the current ability estimate.
	Theta float64
	// StandardError is the uncertainty on Theta. It never increases across
	// updates: it derives from accumulated Fisher information.
	StandardError float64
	// Information is the Fisher information accumulated over all answered
	// items so far.
	Information float64
}

// Config holds the estimator parameters.
//
// The exact update formula is deliberately configurable territory: this
// implementation uses a single Newton-Raphson step on the log-posterior with
// a normal prior centered on InitialTheta.
type Config struct {
	// InitialTheta is the ability estimate before any response.
	InitialTheta float64
	// InitialStandardError is the prior uncertainty; must be positive.
	InitialStandardError float64
	// ThetaMin and ThetaMax bound the estimate so extreme scores cannot
	// diverge.
	ThetaMin float64
	ThetaMax float64
	// PrecisionThreshold is the standard error at which the stopping rule
	// may end a session once the minimum question count is met.
	PrecisionThreshold float64
}

// DefaultConfig returns the estimator defaults.
func DefaultConfig() Config {
	return Config{
		InitialTheta:         0.0,
		InitialStandardError: 1.0,
		ThetaMin:             -4.0,
		ThetaMax:             4.0,
		PrecisionThreshold:   0.40,
	}
}

// normalized fills zero-valued fields with defaults.
func (c Config) normalized() Config {
	defaults := DefaultConfig()
	if c.InitialStandardError <= 0 {
		c.InitialStandardError = defaults.InitialStandardError
	}
	if c.ThetaMin == 0 && c.ThetaMax == 0 {
		c.ThetaMin = defaults.ThetaMin
		c.ThetaMax = defaults.ThetaMax
	}
	if c.PrecisionThreshold <= 0 {
		c.PrecisionThreshold = defaults.PrecisionThreshold
	}
	return c
}

// NewEstimate returns the estimate used before any response is observed.
func NewEstimate(cfg Config) Estimate {
	cfg = cfg.normalized()
	return Estimate{
		Theta:         cfg.InitialTheta,
		StandardError: cfg.InitialStandardError,
		Information:   0,
	}
}

// Probability returns the 2PL item characteristic curve value at theta: the
// expected score for an item with the given difficulty and discrimination.
// The 2PL curve is the CDF of a logistic distribution centered on the item
// difficulty with scale 1/discrimination.
func Probability(item question.Question, theta float64) float64 {
	icc := distuv.Logistic{Mu: item.Difficulty, S: 1 / item.Discrimination}
	return icc.CDF(theta)
}

// Information returns the Fisher information the item carries at theta.
// For the 2PL model this is a^2 * p * (1-p).
func Information(item question.Question, theta float64) float64 {
	p := Probability(item, theta)
	return item.Discrimination * item.Discrimination * p * (1 - p)
}

// UpdateAbility folds one scored response into the running estimate.
//
// The update is a single Newton-Raphson step on the log-posterior: the
// gradient combines the 2PL score residual with the normal prior pull, and
// the curvature is the accumulated information plus the prior precision.
// The returned standard error is 1/sqrt(prior precision + accumulated
// information), which cannot increase as items accumulate.
func UpdateAbility(est Estimate, item question.Question, score float64, cfg Config) (Estimate, error) {
	cfg = cfg.normalized()
	if item.Discrimination <= 0 {
		return Estimate{}, apperrors.WithMetadata(
			apperrors.CodeQuestionInvalidParameters,
			fmt.Sprintf("question discrimination must be positive, got %g", item.Discrimination),
			map[string]string{"QuestionID": item.ID},
		)
	}
	if score < 0 || score > 1 {
		return Estimate{}, apperrors.WithMetadata(
			apperrors.CodeQuestionInvalidScore,
			fmt.Sprintf("score must be within [0, 1], got %g", score),
			map[string]string{"QuestionID": item.ID},
		)
	}

	p := Probability(item, est.Theta)
	itemInfo := item.Discrimination * item.Discrimination * p * (1 - p)
	totalInfo := est.Information + itemInfo

	priorPrecision := 1 / (cfg.InitialStandardError * cfg.InitialStandardError)
	gradient := item.Discrimination*(score-p) - (est.Theta-cfg.InitialTheta)*priorPrecision
	theta := est.Theta + gradient/(totalInfo+priorPrecision)
	theta = clampTheta(theta, cfg)

	return Estimate{
		Theta:         theta,
		StandardError: 1 / math.Sqrt(priorPrecision+totalInfo),
		Information:   totalInfo,
	}, nil
}

func clampTheta(theta float64, cfg Config) float64 {
	if theta < cfg.ThetaMin {
		return cfg.ThetaMin
	}
	if theta > cfg.ThetaMax {
		return cfg.ThetaMax
	}
	return theta
}
