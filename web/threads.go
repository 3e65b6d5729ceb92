// ABOUTME: Read-side thread endpoints: latest thread for a page, a thread by id, and transcript export.
package web

import (
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/2389-research/kodejam/store"
	"github.com/go-chi/chi/v5"
)

func (s *Server) writeThreadErr(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Thread not found")
		return
	}
	s.logger.Error("load thread failed", "err", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleLatestThread(w http.ResponseWriter, r *http.Request) {
	pageID := r.URL.Query().Get("pageId")
	if pageID == "" {
		writeError(w, http.StatusBadRequest, "pageId is required")
		return
	}
	t, err := s.store.LatestThreadForPage(r.Context(), pageID)
	if err != nil {
		s.writeThreadErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetThread(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		s.writeThreadErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleExportThread(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "md"
	}
	if format != "md" && format != "html" {
		writeError(w, http.StatusBadRequest, "format must be md or html")
		return
	}

	t, err := s.store.GetThread(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		s.writeThreadErr(w, err)
		return
	}

	name := fmt.Sprintf("thread-%s.%s", t.ID, format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if format == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(store.RenderMarkdown(t)))
		return
	}

	body, err := store.RenderHTML(t)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s</title></head>\n<body>\n%s</body></html>\n",
		html.EscapeString("Conversation "+t.ID), body)
}
