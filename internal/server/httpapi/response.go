package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/preshare/internal/common"
	"github.com/dmitrijs2005/preshare/internal/gateway"
	"github.com/dmitrijs2005/preshare/internal/server/models"
)

const (
	detailNotAuthenticated = "Authentication credentials were not provided."
	detailForbidden        = "You do not have permission to perform this action."
	detailNotFound         = "Not found."
	detailTooLarge         = "Request entity too large."
	detailGatewayDown      = "Re-encryption gateway unavailable."
	detailServerError      = "A server error occurred."
	detailBadCredentials   = "Unable to log in with provided credentials."
	detailLoggedOut        = "Successfully logged out."
)

// detail is the DRF error body for errors that are not tied to a field.
type detail struct {
	Detail string `json:"detail"`
}

type dataAccessDTO struct {
	ID      int64    `json:"id"`
	DataID  int64    `json:"data_id"`
	Owner   string   `json:"owner"`
	Readers []string `json:"readers"`
}

func toDTO(d *models.DataAccess) dataAccessDTO {
	readers := d.Readers
	if readers == nil {
		readers = []string{}
	}
	return dataAccessDTO{ID: d.ID, DataID: d.DataID, Owner: d.Owner, Readers: readers}
}

func toDTOs(list []models.DataAccess) []dataAccessDTO {
	out := make([]dataAccessDTO, 0, len(list))
	for i := range list {
		out = append(out, toDTO(&list[i]))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// mapDomainError picks the status and body for err. The bool reports an
// unexpected failure that should be logged.
func mapDomainError(err error) (int, any, bool) {
	var fields common.FieldErrors
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &fields):
		return http.StatusBadRequest, fields, false
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, detail{detailTooLarge}, false
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, detail{err.Error()}, false
	case errors.Is(err, common.ErrUnauthorized):
		return http.StatusBadRequest, common.FieldErrors{common.NonFieldErrors: {detailBadCredentials}}, false
	case errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, detail{common.InvalidTokenDetail}, false
	case errors.Is(err, common.ErrForbidden), errors.Is(err, gateway.ErrDenied):
		return http.StatusForbidden, detail{detailForbidden}, false
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, detail{detailNotFound}, false
	case errors.Is(err, gateway.ErrUnavailable):
		return http.StatusServiceUnavailable, detail{detailGatewayDown}, true
	default:
		return http.StatusInternalServerError, detail{detailServerError}, true
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body, unexpected := mapDomainError(err)
	if unexpected {
		h.log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", common.TokenScheme)
	}
	writeJSON(w, status, body)
}
