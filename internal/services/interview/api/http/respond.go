package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	apperrors "github.com/caliperhq/caliper/internal/platform/errors"
)

// errorPayload is the JSON error body returned to callers.
type errorPayload struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retriable bool              `json:"retriable,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// writeError maps application errors onto HTTP statuses and a JSON body.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Code.HTTPStatus(), errorPayload{
			Code:      string(appErr.Code),
			Message:   appErr.Message,
			Retriable: apperrors.Retriable(err),
			Metadata:  appErr.Metadata,
		})
		return
	}
	log.Printf("internal error: %v", err)
	writeJSON(w, http.StatusInternalServerError, errorPayload{
		Code:    string(apperrors.CodeUnknown),
		Message: "internal error",
	})
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func decodeBody(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return apperrors.New(apperrors.CodeInvalidRequest, "request body is not valid JSON")
	}
	return nil
}
