package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/drstein77/luxestore/internal/cart"
	"github.com/drstein77/luxestore/internal/chat"
	"github.com/drstein77/luxestore/internal/storage"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// requestError is a client mistake detected by the controller itself.
type requestError struct {
	message string
}

func (e *requestError) Error() string {
	return e.message
}

func badRequest(message string) error {
	return &requestError{message: message}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return badRequest("cannot read request body")
	}
	if len(body) == 0 {
		return badRequest("empty request body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return badRequest("invalid JSON payload")
	}
	return nil
}

// classify maps an error to its HTTP status and machine readable code.
func classify(err error) (int, string) {
	var (
		reqErr   *requestError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "request_too_large"
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, cart.ErrItemNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, cart.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, storage.ErrInvalidImport):
		return http.StatusBadRequest, "invalid_import"
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrMessageTooLong):
		return http.StatusBadRequest, "invalid_message"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (h *BaseController) writeError(w http.ResponseWriter, err error) {
	code, kind := classify(err)

	message := err.Error()
	if code == http.StatusInternalServerError {
		h.log.Error("Request failed", zap.Error(err))
		message = http.StatusText(code)
	}

	h.writeJSON(w, code, errorResponse{Error: kind, Message: message})
}
