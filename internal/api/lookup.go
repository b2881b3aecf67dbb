package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/Sternrassler/bom-enricher/pkg/bom"
	"github.com/Sternrassler/bom-enricher/pkg/catalog"
	"github.com/gin-gonic/gin"
)

// handleLookup is the part lookup proxy: GET /api/lcsc?part=C25744.
func (s *Server) handleLookup(c *gin.Context) {
	pn := c.Query("part")
	if pn == "" {
		respondError(c, http.StatusBadRequest, "Part number is required")
		return
	}
	if !bom.ValidPartNumber(pn) {
		respondError(c, http.StatusBadRequest, "Invalid LCSC part number format")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), proxyTimeout)
	defer cancel()

	info, err := s.proxy.Lookup(ctx, pn)
	if err != nil {
		var se *catalog.StatusError
		if errors.As(err, &se) {
			respondError(c, se.StatusCode, se.Message)
			return
		}
		s.logger.Warn().Err(err).Str("part_number", pn).Msg("Part lookup failed")
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, info)
}
