package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
)

const maxBodyBytes = 1 << 20

// StatusCode はドメインエラーを HTTP ステータスへ対応付けます。
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, hierarchy.ErrValidationFailed),
		errors.Is(err, hierarchy.ErrInvalidID),
		errors.Is(err, hierarchy.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, hierarchy.ErrNodeNotFound),
		errors.Is(err, hierarchy.ErrParentNotFound),
		errors.Is(err, hierarchy.ErrParentTerminated):
		return http.StatusNotFound
	case errors.Is(err, hierarchy.ErrCycleRejected),
		errors.Is(err, hierarchy.ErrSelfReference),
		errors.Is(err, hierarchy.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, hierarchy.ErrUnauthorized):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = http.StatusText(code)
	}
	writeJSON(w, code, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", hierarchy.ErrValidationFailed, err)
	}
	return nil
}
