// Package errors provides structured, coded error handling for the service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeInvalidRequest represents a malformed caller request.
	CodeInvalidRequest Code = "INVALID_REQUEST"

	// Session scheduling errors
	CodeSessionInvalidSchedule       Code = "SESSION_INVALID_SCHEDULE"
	CodeSessionEmptyCandidateID      Code = "SESSION_EMPTY_CANDIDATE_ID"
	CodeSessionEmptyRecruiterID      Code = "SESSION_EMPTY_RECRUITER_ID"
	CodeSessionEmptyJobRole          Code = "SESSION_EMPTY_JOB_ROLE"
	CodeSessionInvalidQuestionBounds Code = "SESSION_INVALID_QUESTION_BOUNDS"

	// Session lifecycle errors
	CodeSessionInvalidTransition      Code = "SESSION_INVALID_TRANSITION"
	CodeSessionStartBeforeWindow      Code = "SESSION_START_BEFORE_WINDOW"
	CodeSessionQuestionMismatch       Code = "SESSION_QUESTION_MISMATCH"
	CodeSessionConcurrentModification Code = "SESSION_CONCURRENT_MODIFICATION"
	CodeSessionMinQuestionsNotMet     Code = "SESSION_MIN_QUESTIONS_NOT_MET"

	// Question selection errors
	CodeQuestionPoolExhausted     Code = "QUESTION_POOL_EXHAUSTED"
	CodeQuestionInvalidScore      Code = "QUESTION_INVALID_SCORE"
	CodeQuestionInvalidParameters Code = "QUESTION_INVALID_PARAMETERS"

	// Credential errors
	CodeCredentialInvalid         Code = "CREDENTIAL_INVALID"
	CodeCredentialExpired         Code = "CREDENTIAL_EXPIRED"
	CodeCredentialMismatch        Code = "CREDENTIAL_MISMATCH"
	CodeCredentialSessionMismatch Code = "CREDENTIAL_SESSION_MISMATCH"
	CodeCredentialRevoked         Code = "CREDENTIAL_REVOKED"
	CodeCredentialInvalidRole     Code = "CREDENTIAL_INVALID_ROLE"
	CodeOperationNotAllowed       Code = "OPERATION_NOT_ALLOWED"

	// Candidate pipeline errors
	CodeCandidateInvalidStatusTransition Code = "CANDIDATE_INVALID_STATUS_TRANSITION"
	CodeCandidateNotSchedulable          Code = "CANDIDATE_NOT_SCHEDULABLE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeInvalidRequest,
		CodeSessionInvalidSchedule,
		CodeSessionEmptyCandidateID,
		CodeSessionEmptyRecruiterID,
		CodeSessionEmptyJobRole,
		CodeSessionInvalidQuestionBounds,
		CodeQuestionInvalidScore,
		CodeQuestionInvalidParameters:
		return http.StatusBadRequest

	// Unauthorized - credential failures
	case CodeCredentialInvalid,
		CodeCredentialExpired,
		CodeCredentialMismatch,
		CodeCredentialSessionMismatch,
		CodeCredentialRevoked,
		CodeCredentialInvalidRole:
		return http.StatusUnauthorized

	// Forbidden - authenticated but role disallows the operation
	case CodeOperationNotAllowed:
		return http.StatusForbidden

	// Conflict - state doesn't allow operation
	case CodeSessionInvalidTransition,
		CodeSessionStartBeforeWindow,
		CodeSessionQuestionMismatch,
		CodeSessionConcurrentModification,
		CodeSessionMinQuestionsNotMet,
		CodeQuestionPoolExhausted,
		CodeCandidateInvalidStatusTransition,
		CodeCandidateNotSchedulable:
		return http.StatusConflict

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
