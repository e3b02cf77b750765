package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"docbatch/internal/domain"
	"docbatch/internal/infra/logging"
	"docbatch/internal/usecase"
)

const maxJSONBody = 1 << 20

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var in usecase.CreateJobInput
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&in); err != nil {
		writeError(w, r, s.log, fmt.Errorf("%w: malformed json", domain.ErrInvalidArgument))
		return
	}
	view, err := s.batch.CreateJob(r.Context(), userFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, newJobResponse(view))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	view, err := s.batch.GetJob(r.Context(), userFrom(r.Context()), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(view))
}

// Multipart memory threshold; larger parts spill to temp files.
const multipartMemory = 32 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Error:   "payload_too_large",
				Message: "upload exceeds " + strconv.FormatInt(s.opts.MaxUploadBytes, 10) + " bytes",
			})
			return
		}
		writeError(w, r, s.log, fmt.Errorf("%w: expected multipart form", domain.ErrInvalidArgument))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	uploads := make([]usecase.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, r, s.log, fmt.Errorf("open part %q: %w", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, r, s.log, fmt.Errorf("read part %q: %w", fh.Filename, err))
			return
		}
		uploads = append(uploads, usecase.UploadFile{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	ctx := logging.WithJobID(r.Context(), chi.URLParam(r, "jobID"))
	res, err := s.batch.Upload(ctx, userFrom(ctx), chi.URLParam(r, "jobID"), uploads)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleProcess answers 200 with the sweep result even when the sweep
// failed the job; error_code tells the caller why.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithJobID(r.Context(), chi.URLParam(r, "jobID"))
	res, err := s.batch.Process(ctx, userFrom(ctx), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type mergeResponse struct {
	*usecase.MergeResult
	DownloadURL string `json:"download_url"`
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithJobID(r.Context(), chi.URLParam(r, "jobID"))
	res, err := s.merge.Merge(ctx, userFrom(ctx), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, mergeResponse{MergeResult: res, DownloadURL: s.downloadURL(res.OutputID, res.Token)})
}

func (s *Server) downloadURL(outputID, token string) string {
	return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/api/v1/downloads/" + url.PathEscape(outputID) + "?token=" + url.QueryEscape(token)
}

// handleDownload never tells callers why a link failed.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	dl, err := s.links.Open(r.Context(), chi.URLParam(r, "outputID"), r.URL.Query().Get("token"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "download not found"})
		return
	}
	defer dl.Body.Close()

	h := w.Header()
	h.Set("Content-Type", dl.Output.ContentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Output.Filename}))
	h.Set("Cache-Control", "no-store")
	if dl.Size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, dl.Body); err != nil {
		l := logging.With(r.Context(), s.log)
		l.Warn().Err(err).Str("output_id", dl.Output.ID).Msg("download interrupted")
	}
}
