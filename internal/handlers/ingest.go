package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/algobrain/threatgraph-backend/internal/ingest"
	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
)

type IngestHandler struct {
	log          *logger.Logger
	orchestrator *ingest.Orchestrator
}

func NewIngestHandler(log *logger.Logger, o *ingest.Orchestrator) *IngestHandler {
	return &IngestHandler{
		log:          log.With("handler", "IngestHandler"),
		orchestrator: o,
	}
}

type ingestRequest struct {
	Source  string `json:"source"`
	Dataset string `json:"dataset"`
}

// POST /api/ingest
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	req.Source = strings.TrimSpace(req.Source)
	req.Dataset = strings.TrimSpace(req.Dataset)
	if req.Source == "" || req.Dataset == "" {
		RespondError(c, http.StatusBadRequest, "invalid_body", fmt.Errorf("source and dataset are required"))
		return
	}

	result, err := h.orchestrator.Ingest(c.Request.Context(), req.Source, req.Dataset)
	if err != nil {
		h.log.Error("ingestion failed", "dataset", req.Dataset, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  APIError{Message: err.Error(), Code: "ingest_failed"},
			"result": result,
		})
		return
	}
	RespondOK(c, result)
}
