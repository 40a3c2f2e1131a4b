package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"lakehouse/internal/domain"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var (
		notFound   *domain.NotFoundError
		duplicate  *domain.DuplicateTableError
		conflict   *domain.ConflictError
		validation *domain.ValidationError
		partition  *domain.UnknownPartitionColumnError
		ingestErr  *domain.IngestionError
		storageErr *domain.StorageError
	)

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &duplicate), errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &partition):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ingestErr) && ingestErr.Kind != domain.StagingCleanupFailed:
		return http.StatusUnprocessableEntity
	case errors.As(err, &storageErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Code: status, Message: message})
}
