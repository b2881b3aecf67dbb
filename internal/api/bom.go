package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Sternrassler/bom-enricher/pkg/bom"
	"github.com/Sternrassler/bom-enricher/pkg/export"
	"github.com/Sternrassler/bom-enricher/pkg/fetch"
	"github.com/Sternrassler/bom-enricher/pkg/store"
	"github.com/gin-gonic/gin"
)

type uploadResponse struct {
	Rows     []bom.Row    `json:"rows"`
	Warnings []string     `json:"warnings"`
	Counts   store.Counts `json:"counts"`
	Filename string       `json:"filename,omitempty"`
}

type bomResponse struct {
	store.Snapshot
	Running  bool            `json:"running"`
	Progress *fetch.Progress `json:"progress"`
}

// handleUpload accepts a CSV either as multipart field "file" or as the raw
// request body (with an optional ?filename=).
func (s *Server) handleUpload(c *gin.Context) {
	if s.orch.Running() {
		respondError(c, http.StatusConflict, "Cannot load a BOM while a fetch is running")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Server.MaxUploadBytes)

	var (
		body     io.Reader
		filename string
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(c, http.StatusRequestEntityTooLarge, "Upload too large")
				return
			}
			respondError(c, http.StatusBadRequest, "Missing file field")
			return
		}
		f, err := fh.Open()
		if err != nil {
			respondError(c, http.StatusBadRequest, "Failed to read uploaded file")
			return
		}
		defer f.Close()
		body, filename = f, fh.Filename
	} else {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			respondError(c, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		body, filename = bytes.NewReader(data), c.Query("filename")
	}

	res, err := bom.ParseCSV(body)
	if errors.Is(err, bom.ErrEmptyBOM) || (err == nil && len(res.Items) == 0) {
		respondError(c, http.StatusBadRequest, "BOM file contains no rows")
		return
	}
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	rows := s.rows.Load(res.Items)
	s.rows.SetFilename(filename)

	s.logger.Info().
		Str("filename", filename).
		Int("rows", len(rows)).
		Int("warnings", len(warnings)).
		Msg("BOM uploaded")

	c.JSON(http.StatusCreated, uploadResponse{
		Rows:     rows,
		Warnings: warnings,
		Counts:   s.rows.Counts(),
		Filename: filename,
	})
}

func (s *Server) handleGetBOM(c *gin.Context) {
	resp := bomResponse{
		Snapshot: s.rows.Snapshot(),
		Running:  s.orch.Running(),
	}
	if p, ok := s.orch.Progress(); ok {
		resp.Progress = &p
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleClearBOM(c *gin.Context) {
	s.orch.Stop()
	s.rows.Clear()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUpdateRow(c *gin.Context) {
	var p store.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	row, err := s.rows.Update(c.Param("id"), p)
	switch {
	case errors.Is(err, store.ErrRowNotFound):
		respondError(c, http.StatusNotFound, "Row not found")
		return
	case errors.Is(err, store.ErrInvalidQuantity):
		respondError(c, http.StatusBadRequest, "Quantity must not be negative")
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, row)
}

func (s *Server) handleDeleteRow(c *gin.Context) {
	if err := s.rows.Remove(c.Param("id")); err != nil {
		respondError(c, http.StatusNotFound, "Row not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleExport(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	snap := s.rows.Snapshot()
	if len(snap.Rows) == 0 {
		respondError(c, http.StatusNotFound, "No BOM loaded")
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, snap.Rows); err != nil {
		s.logger.Error().Err(err).Str("format", string(format)).Msg("Export failed")
		respondError(c, http.StatusInternalServerError, "Failed to export BOM")
		return
	}

	name := fmt.Sprintf("%s.%s", export.Filename(snap.Filename, s.now()), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}
