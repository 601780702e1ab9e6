// Package admin exposes the node's read-only HTTP surface: cluster
// membership, the local listener table, the interests served for other
// members, and Prometheus metrics.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/skygrid-io/gridmesh/cluster"
	"github.com/skygrid-io/gridmesh/grid"
)

// Handlers serves the admin API endpoints.
type Handlers struct {
	membership *cluster.Membership
	listeners  *grid.ListenerService
}

// NewHandlers creates a Handlers instance.
func NewHandlers(membership *cluster.Membership, listeners *grid.ListenerService) *Handlers {
	return &Handlers{
		membership: membership,
		listeners:  listeners,
	}
}

// handleClusterMembers handles GET /admin/cluster/members
func (h *Handlers) handleClusterMembers(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.membership.GetMembershipInfo())
}

// handleClusterHealth handles GET /admin/cluster/health
func (h *Handlers) handleClusterHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, map[string]interface{}{
		"local":   h.membership.LocalAddress().String(),
		"members": h.membership.Count(),
		"status":  h.membership.StatusCounts(),
	})
}

// handleListenerItems handles GET /admin/listeners/items
func (h *Handlers) handleListenerItems(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.listeners.LocalItems())
}

// handleListenerInterests handles GET /admin/listeners/interests
func (h *Handlers) handleListenerInterests(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.listeners.RemoteInterests())
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}) {
	response := map[string]interface{}{
		"data": data,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]interface{}{
		"error": message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
