package api

import (
	"errors"
	"net/http"

	"github.com/edpsych-connect/connect/pkg/billing"
	"github.com/edpsych-connect/connect/pkg/httputil"
	"github.com/edpsych-connect/connect/pkg/observability"
	"github.com/edpsych-connect/connect/pkg/sessions"
	"github.com/edpsych-connect/connect/pkg/tenants"
	"github.com/edpsych-connect/connect/pkg/validation"
)

// writeError maps a service error to its HTTP status. Anything unclassified
// is logged and answered with a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		httputil.WriteValidationError(w, verr)
	case billing.IsInvalidWebhook(err):
		httputil.WriteBadRequest(w, "invalid webhook")
	case errors.Is(err, billing.ErrNotFound), errors.Is(err, tenants.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, billing.ErrConflict), errors.Is(err, tenants.ErrConflict):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, sessions.ErrNotFound):
		httputil.WriteUnauthorized(w, "session expired")
	default:
		observability.FromContext(r.Context()).WithError(err).Error("Request failed")
		httputil.WriteInternalError(w)
	}
}
