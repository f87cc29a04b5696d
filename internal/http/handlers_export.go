package http

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/export"
	"fintrack/internal/log"
	"fintrack/internal/session"
)

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.serveExport(w, r, sess, "csv", "text/csv; charset=utf-8", export.CSV)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.serveExport(w, r, sess, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.XLSX)
}

// serveExport renders into a buffer first so a failure can still produce an
// error status.
func (s *Server) serveExport(w http.ResponseWriter, r *http.Request, sess *session.Session, ext, contentType string,
	render func(io.Writer, []core.Transaction) error) {
	vs := s.synced(r.Context(), sess)

	var buf bytes.Buffer
	if err := render(&buf, vs.Transactions); err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Transactions exported",
		log.FieldOperation, log.OpExport, "format", ext, log.FieldCount, len(vs.Transactions))

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(ext, time.Now())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if s.sheets == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "Google Sheets export is not configured"})
		return
	}
	vs := s.synced(r.Context(), sess)
	rng, err := s.sheets.Append(r.Context(), vs.Transactions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updatedRange": rng, "count": len(vs.Transactions)})
}
