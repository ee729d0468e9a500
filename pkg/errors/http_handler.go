package errors

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// WriteError renders err as a JSON error envelope. Contention errors also set
// the Retry-After header.
func WriteError(w http.ResponseWriter, err error) error {
	appErr := AsAppError(err)
	w.Header().Set("Content-Type", "application/json")
	if retryAfter, ok := appErr.RetryAfter(); ok {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	w.WriteHeader(appErr.StatusCode())

	return json.NewEncoder(w).Encode(ErrorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}
