package api

import (
	"net/http"

	"github.com/Sternrassler/bom-enricher/pkg/fetch"
	"github.com/Sternrassler/bom-enricher/pkg/store"
	"github.com/gin-gonic/gin"
)

type progressResponse struct {
	Running  bool            `json:"running"`
	Progress *fetch.Progress `json:"progress"`
	Counts   store.Counts    `json:"counts"`
}

func (s *Server) handleFetchStart(c *gin.Context) {
	if s.orch.Running() {
		respondError(c, http.StatusConflict, "Fetch already running")
		return
	}

	pending := len(s.rows.PendingPartNumbers())
	if !s.orch.Start(s.runCtx) {
		if s.orch.Running() {
			respondError(c, http.StatusConflict, "Fetch already running")
			return
		}
		c.JSON(http.StatusOK, gin.H{"started": false, "total": 0})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"started": true, "total": pending})
}

func (s *Server) handleFetchStop(c *gin.Context) {
	running := s.orch.Running()
	s.orch.Stop()
	c.JSON(http.StatusAccepted, gin.H{"stopped": running})
}

func (s *Server) handleFetchRetry(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reset": s.orch.RetryErrors()})
}

func (s *Server) handleFetchProgress(c *gin.Context) {
	resp := progressResponse{
		Running: s.orch.Running(),
		Counts:  s.rows.Counts(),
	}
	if p, ok := s.orch.Progress(); ok {
		resp.Progress = &p
	}
	c.JSON(http.StatusOK, resp)
}
