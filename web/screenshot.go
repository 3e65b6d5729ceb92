// ABOUTME: On-demand screenshot endpoints and the file route serving captures written during chat turns.
// ABOUTME: Images come back base64 encoded; stored captures are served only from a repo's screenshot dir.
package web

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"github.com/2389-research/kodejam/capture"
	"github.com/go-chi/chi/v5"
)

// ScreenshotRequest is the body of POST /api/screenshot.
type ScreenshotRequest struct {
	URL      string `json:"url"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Selector string `json:"selector,omitempty"`
}

// ScreenshotResponse carries one captured image.
type ScreenshotResponse struct {
	ImageBase64 string `json:"imageBase64"`
	DataURL     string `json:"dataUrl"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// BatchRequest is the body of POST /api/screenshot/batch.
type BatchRequest struct {
	URLs   []string `json:"urls"`
	Width  int      `json:"width,omitempty"`
	Height int      `json:"height,omitempty"`
}

// BatchResult is one entry of a batch response, in request order.
type BatchResult struct {
	URL         string `json:"url"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	DataURL     string `json:"dataUrl,omitempty"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

var screenshotName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*\.png$`)

// screenshotURL is the reference published for a capture written into repo.
func screenshotURL(repoPath, name string) string {
	return "/api/screenshots/" + url.PathEscape(name) + "?repo=" + url.QueryEscape(repoPath)
}

func encodePNG(png []byte) (string, string) {
	b64 := base64.StdEncoding.EncodeToString(png)
	return b64, "data:image/png;base64," + b64
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	var req ScreenshotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if _, err := capture.ValidateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "screenshot capture is not configured")
		return
	}

	width, height := s.pipeline.Viewport(req.Width, req.Height)
	var png []byte
	var shotErr error
	err := s.pipeline.Snapshot(r.Context(), []capture.Shot{{
		URL:      req.URL,
		Width:    width,
		Height:   height,
		Selector: req.Selector,
	}}, func(_ int, data []byte, err error) {
		png, shotErr = data, err
	})
	if err == nil {
		err = shotErr
	}
	if err != nil {
		s.logger.Warn("screenshot failed", "url", req.URL, "err", err)
		writeError(w, http.StatusInternalServerError, "Screenshot failed: "+err.Error())
		return
	}

	b64, dataURL := encodePNG(png)
	writeJSON(w, http.StatusOK, ScreenshotResponse{
		ImageBase64: b64,
		DataURL:     dataURL,
		Width:       width,
		Height:      height,
	})
}

func (s *Server) handleScreenshotBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls must be a non-empty array")
		return
	}
	for _, u := range req.URLs {
		if _, err := capture.ValidateURL(u); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%v: %s", err, u))
			return
		}
	}
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "screenshot capture is not configured")
		return
	}

	width, height := s.pipeline.Viewport(req.Width, req.Height)
	shots := make([]capture.Shot, len(req.URLs))
	results := make([]BatchResult, len(req.URLs))
	for i, u := range req.URLs {
		shots[i] = capture.Shot{URL: u, Width: width, Height: height}
		results[i] = BatchResult{URL: u, Width: width, Height: height}
	}

	err := s.pipeline.Snapshot(r.Context(), shots, func(i int, png []byte, err error) {
		if err != nil {
			results[i].Error = err.Error()
			return
		}
		results[i].Success = true
		results[i].ImageBase64, results[i].DataURL = encodePNG(png)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Screenshot failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleScreenshotFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if !screenshotName.MatchString(name) {
		writeError(w, http.StatusBadRequest, "invalid screenshot name")
		return
	}
	repo := r.URL.Query().Get("repo")
	if repo == "" || !filepath.IsAbs(repo) {
		writeError(w, http.StatusBadRequest, "repo must be an absolute path")
		return
	}
	if msg := s.checkRepo(repo); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	path := filepath.Join(screenshotDir(filepath.Clean(repo)), name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if err == nil || errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "screenshot not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeFile(w, r, path)
}
