package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yuanying/epubshelf/internal/archive"
	"github.com/yuanying/epubshelf/internal/cache"
	"github.com/yuanying/epubshelf/internal/epub"
	"github.com/yuanying/epubshelf/internal/library"
)

// ImportRequest lists files to import, as paths on the server host.
type ImportRequest struct {
	Paths []string `json:"paths"`
}

// ImportResponse is the outcome of one file of an ImportRequest.
type ImportResponse struct {
	Path     string        `json:"path"`
	Book     *library.Book `json:"book,omitempty"`
	Fallback bool          `json:"fallback,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// ProgressRequest is the body of a progress update.
type ProgressRequest struct {
	Index int `json:"index"`
	Page  int `json:"page"`
}

// ChapterResponse is one chapter of a ReadingResponse.
type ChapterResponse struct {
	Title string `json:"title"`
	Href  string `json:"href"`
	URL   string `json:"url"`
}

// ReadingResponse describes how to display a book.
type ReadingResponse struct {
	Book     *library.Book     `json:"book"`
	BaseURL  string            `json:"base_url"`
	Chapters []ChapterResponse `json:"chapters"`
	NCXOnly  bool              `json:"ncx_only,omitempty"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	books, err := s.lib.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Paths) == 0 {
		http.Error(w, "paths list is required", http.StatusBadRequest)
		return
	}

	results := s.lib.Import(r.Context(), req.Paths)
	resp := make([]ImportResponse, 0, len(results))
	for _, res := range results {
		item := ImportResponse{Path: res.Path, Book: res.Book, Fallback: res.Fallback}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	book, err := s.lib.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var u library.BookUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	book, err := s.lib.Update(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.lib.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	var req ProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Index < 0 || req.Page < 0 {
		http.Error(w, "index and page must not be negative", http.StatusBadRequest)
		return
	}

	if err := s.lib.SetProgress(r.Context(), chi.URLParam(r, "id"), req.Index, req.Page); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReading(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reading, err := s.lib.OpenReading(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	base := contentURL(id, reading.Root, reading.ContentRoot)
	resp := ReadingResponse{
		Book:     reading.Book,
		BaseURL:  base,
		Chapters: make([]ChapterResponse, 0, len(reading.Chapters)),
		NCXOnly:  reading.NCXOnly,
	}
	for _, ch := range reading.Chapters {
		resp.Chapters = append(resp.Chapters, ChapterResponse{
			Title: ch.Title,
			Href:  ch.Href,
			URL:   base + ch.Href,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	book, err := s.lib.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p := s.lib.CoverPath(book)
	if p == "" {
		http.Error(w, "book has no cover", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, p)
}

// handleContent serves a file of the extracted book. Paths are confined to
// the extraction directory and the completion marker is never served.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	root, err := s.lib.Extract(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rel := strings.TrimPrefix(path.Clean("/"+chi.URLParam(r, "*")), "/")
	if rel == "" || rel == cache.MarkerName {
		http.NotFound(w, r)
		return
	}

	file := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(file)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, file)
}

// contentURL returns the URL of the directory dir under the extraction root,
// with a trailing slash.
func contentURL(id, root, dir string) string {
	u := "/books/" + id + "/content/"
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return u
	}
	return u + filepath.ToSlash(rel) + "/"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"request_id", GetRequestID(r.Context()),
			"path", r.URL.Path,
			"error", err)
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cache.ErrInvalidBookID):
		return http.StatusBadRequest
	case errors.Is(err, archive.ErrNotAnArchive),
		errors.Is(err, archive.ErrTruncated),
		errors.Is(err, archive.ErrUnsupportedCompression),
		errors.Is(err, archive.ErrEntryTooLarge),
		errors.Is(err, epub.ErrMissingContainer),
		errors.Is(err, epub.ErrMissingPackageDocument),
		errors.Is(err, epub.ErrInvalid),
		errors.Is(err, cache.ErrUnsafePath):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
