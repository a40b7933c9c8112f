package gateway

import (
	"errors"
	"io"
	"net/http"
)

// multipartMemory is the part of an upload kept in memory before spilling to disk.
const multipartMemory = 8 << 20

// errorBody is the failure payload of POST /analyze.
type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	jsonMarshalMu.RLock()
	marshal := jsonMarshal
	jsonMarshalMu.RUnlock()
	data, err := marshal(v)
	if err != nil {
		http.Error(w, `{"detail":"encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// handleAnalyze accepts a multipart upload in field "file" and answers with
// the decision, or 500 and {"detail": ...} when the run fails.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "analyzer not configured"})
		return
	}
	limit := s.maxUpload()
	if r.ContentLength > limit {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Detail: "upload too large"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Detail: "upload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "expected multipart form with field \"file\""})
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "missing form field \"file\""})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "read upload: " + err.Error()})
		return
	}

	report, err := s.analyzer.AnalyzeDocument(r.Context(), header.Filename, data, nil)
	if err != nil {
		s.log().Error("analyze failed", "document", header.Filename, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report.Decision)
}
