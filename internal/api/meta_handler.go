package api

import (
	"net/http"

	"github.com/hidroops/represas-insights/internal/apperr"
	"github.com/hidroops/represas-insights/internal/insights"
	"github.com/hidroops/represas-insights/internal/pkg/httputil"
)

// MetaHandler serves the reservoir directory.
type MetaHandler struct {
	dir  insights.Directory
	errs *ErrorWriter
}

func NewMetaHandler(dir insights.Directory, errs *ErrorWriter) *MetaHandler {
	return &MetaHandler{dir: dir, errs: errs}
}

// HandleEntities serves GET /api/v1/meta/represas.
func (h *MetaHandler) HandleEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.dir.ListEntities(r.Context())
	if err != nil {
		h.errs.Write(w, r, apperr.DB(err))
		return
	}
	httputil.OK(w, map[string]any{
		"ok":   true,
		"data": entities,
	})
}
