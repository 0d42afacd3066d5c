package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/algobrain/threatgraph-backend/internal/ingest"
	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
)

type StatsHandler struct {
	log          *logger.Logger
	orchestrator *ingest.Orchestrator
}

func NewStatsHandler(log *logger.Logger, o *ingest.Orchestrator) *StatsHandler {
	return &StatsHandler{
		log:          log.With("handler", "StatsHandler"),
		orchestrator: o,
	}
}

// GET /api/stats
func (h *StatsHandler) GetStats(c *gin.Context) {
	labelCounts, err := h.orchestrator.LabelCounts(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusBadGateway, "graph_unavailable", err)
		return
	}
	RespondOK(c, gin.H{
		"pipeline":     h.orchestrator.Stats(),
		"label_counts": labelCounts,
	})
}
