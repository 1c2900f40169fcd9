package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/oriundostartup/libreta/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Pinger is the local mirror as the health check sees it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	Client *mongo.Client
	Mirror Pinger
	Log    *zap.Logger
}

// NewHandler constructs a health Handler with the Mongo client, the mirror
// and logger.
func NewHandler(client *mongo.Client, mirror Pinger, logger *zap.Logger) *Handler {
	return &Handler{
		Client: client,
		Mirror: mirror,
		Log:    logger,
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Mirror   string `json:"mirror"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "mirror":"ok" }
//
// When Mongo or the mirror fails: 503 with status "error" and the failing
// component marked.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
		Mirror:   "ok",
	}

	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
	}

	if err := h.Mirror.Ping(ctx); err != nil {
		h.Log.Error("health-check: mirror ping failed", zap.Error(err))
		resp.Status = "error"
		resp.Mirror = "unavailable"
		if resp.Message == "" {
			resp.Message = "Local mirror unavailable"
			resp.Error = err.Error()
		}
	}

	if resp.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
