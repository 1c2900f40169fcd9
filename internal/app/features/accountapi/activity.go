package accountapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/oriundostartup/libreta/internal/app/store/audit"
	"github.com/oriundostartup/libreta/internal/app/system/accounterr"
	"github.com/oriundostartup/libreta/internal/app/system/auth"
	"github.com/oriundostartup/libreta/internal/app/system/timeouts"
	"go.uber.org/zap"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = audit.DefaultLimit
)

// ActivityLog reads audit events about one identity. *audit.Store
// satisfies it.
type ActivityLog interface {
	ForIdentity(ctx context.Context, uid string, limit int64) ([]audit.Event, error)
}

type activityResponse struct {
	Events []audit.Event `json:"events"`
}

// ServeActivity handles GET /accounts/me/activity: the signed-in identity's
// recent sign-ins, registration outcome and sync problems, newest first.
// ?limit= caps the result.
func (h *Handler) ServeActivity(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	limit := int64(defaultActivityLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			h.writeError(w, accounterr.Invalid("limit", "must be a positive integer"))
			return
		}
		limit = min(n, maxActivityLimit)
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "activity")
	defer cancel()

	events, err := h.Activity.ForIdentity(ctx, u.UID, limit)
	if err != nil {
		h.Log.Error("activity read failed", zap.String("uid", u.UID), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, activityResponse{Events: events})
}
