package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/blox-core/internal/box"
	"github.com/nerrad567/blox-core/internal/cbox"
)

// ObjectList is the body of /objects and /stored.
type ObjectList struct {
	Objects []box.ObjectView `json:"objects"`
	Count   int              `json:"count"`
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	var views []box.ObjectView
	if !s.snapshot(w, r, func(b *box.Box) { views = b.Views() }) {
		return
	}
	writeJSON(w, http.StatusOK, ObjectList{Objects: views, Count: len(views)})
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil || n == 0 {
		writeBadRequest(w, "invalid object id: "+raw)
		return
	}

	var (
		view  box.ObjectView
		found bool
	)
	if !s.snapshot(w, r, func(b *box.Box) { view, found = b.View(cbox.ObjectID(n)) }) {
		return
	}
	if !found {
		writeNotFound(w, "object not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleListStored reads the store on the loop goroutine, so the listing
// never interleaves with a command's persist.
func (s *Server) handleListStored(w http.ResponseWriter, r *http.Request) {
	var (
		views []box.ObjectView
		err   error
	)
	if !s.snapshot(w, r, func(b *box.Box) { views, err = b.StoredViews(r.Context()) }) {
		return
	}
	if err != nil {
		s.logger.Error("listing stored objects failed", "error", err)
		writeInternalError(w, "failed to list stored objects")
		return
	}
	if views == nil {
		views = []box.ObjectView{}
	}
	writeJSON(w, http.StatusOK, ObjectList{Objects: views, Count: len(views)})
}
