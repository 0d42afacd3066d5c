package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/algobrain/threatgraph-backend/internal/ingest"
	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
)

type CrossRefHandler struct {
	log          *logger.Logger
	orchestrator *ingest.Orchestrator
}

func NewCrossRefHandler(log *logger.Logger, o *ingest.Orchestrator) *CrossRefHandler {
	return &CrossRefHandler{
		log:          log.With("handler", "CrossRefHandler"),
		orchestrator: o,
	}
}

// GET /api/crossrefs/report
func (h *CrossRefHandler) GetReport(c *gin.Context) {
	analysis := h.orchestrator.Analysis()
	if analysis == nil {
		RespondError(c, http.StatusNotFound, "no_report", fmt.Errorf("no cross-reference run has completed yet"))
		return
	}
	RespondOK(c, gin.H{
		"exact_matches":          analysis.ExactMatches,
		"alias_matches":          analysis.AliasMatches,
		"fuzzy_matches":          analysis.FuzzyMatches,
		"tactic_mappings":        analysis.TacticMappings,
		"platform_intersections": analysis.PlatformIntersections,
		"total_cross_references": len(analysis.CrossReferences()),
	})
}
