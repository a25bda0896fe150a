package api

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/okian/keystudy/internal/domain/export"
	"github.com/okian/keystudy/internal/domain/model"
	"github.com/okian/keystudy/internal/domain/types"
	"github.com/okian/keystudy/pkg/logger"
)

// DataDependencies defines the read operations over stored study data.
type DataDependencies interface {
	GetAllData(ctx context.Context) ([]model.ParticipantView, error)
	ExportCSV(ctx context.Context, w io.Writer) (int, error)
}

// DataHandler serves bulk reads and the CSV export.
type DataHandler struct {
	deps DataDependencies
	log  logger.Logger
}

// NewDataHandler creates a new data handler.
func NewDataHandler(deps DataDependencies, log logger.Logger) *DataHandler {
	return &DataHandler{deps: deps, log: log}
}

// HandleGetData handles GET /api/get_data requests.
func (h *DataHandler) HandleGetData(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_data"
	views, err := h.deps.GetAllData(r.Context())
	if err != nil {
		writeFailure(r.Context(), w, h.log, op, err)
		return
	}
	if views == nil {
		views = []model.ParticipantView{}
	}
	writeJSON(w, http.StatusOK, types.DataResponse{Success: true, Data: views})
}

// HandleExportCSV handles GET /api/export_csv requests. The file is built
// in memory first so a failure still yields a JSON error.
func (h *DataHandler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	const op = "api.export_csv"
	var buf bytes.Buffer
	if _, err := h.deps.ExportCSV(r.Context(), &buf); err != nil {
		writeFailure(r.Context(), w, h.log, op, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": export.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
