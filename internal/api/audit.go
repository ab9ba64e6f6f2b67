package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/blox-core/internal/audit"
)

// handleListAudit returns paginated command log entries, newest first.
//
// Query parameters:
//   - command: filter by command name (write_object, create_object, ...)
//   - status: filter by reply status (ok, crc_error, ...)
//   - object_id: filter by target object
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeUnavailable(w, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Command: q.Get("command"),
		Status:  q.Get("status"),
	}

	if v := q.Get("object_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			writeBadRequest(w, "invalid object_id: "+v)
			return
		}
		filter.ObjectID = uint16(n)
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list command log", "error", err)
		writeInternalError(w, "failed to list command log")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
