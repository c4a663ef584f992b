package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"catalog-sync-service/internal/config"
	"catalog-sync-service/internal/importer"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/normalize"
	"catalog-sync-service/internal/repository"
	"catalog-sync-service/internal/services"
)

// RunHandler handles sync run endpoints
type RunHandler struct {
	service *services.SyncService
	cfg     *config.Config
}

// NewRunHandler creates a new run handler
func NewRunHandler(service *services.SyncService, cfg *config.Config) *RunHandler {
	return &RunHandler{service: service, cfg: cfg}
}

func (h *RunHandler) columnMap() importer.ColumnMap {
	return importer.ColumnMap{
		SearchKey: h.cfg.ColumnSearchKey,
		Price:     h.cfg.ColumnPrice,
		Inventory: h.cfg.ColumnInventory,
		Title:     h.cfg.ColumnTitle,
		Brand:     h.cfg.ColumnBrand,
	}
}

// parseUpload reads the uploaded xlsx file into external records.
func (h *RunHandler) parseUpload(c *gin.Context) ([]models.ExternalRecord, string, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file upload"})
		return nil, "", false
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, "", false
	}
	defer file.Close()

	keyOpts := normalize.KeyOptions{CaseInsensitive: h.cfg.MatchCaseInsensitive}
	records, err := importer.ParseXLSX(file, h.columnMap(), keyOpts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, "", false
	}
	return records, fileHeader.Filename, true
}

// CreateRun starts a sync run from an uploaded spreadsheet
func (h *RunHandler) CreateRun(c *gin.Context) {
	records, filename, ok := h.parseUpload(c)
	if !ok {
		return
	}

	run, err := h.service.StartRun(c.Request.Context(), records, filename)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": run})
}

// PreviewRun reconciles an uploaded spreadsheet against the catalog
// without applying anything
func (h *RunHandler) PreviewRun(c *gin.Context) {
	records, _, ok := h.parseUpload(c)
	if !ok {
		return
	}

	plan, err := h.service.Preview(c.Request.Context(), records)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"matched":   plan.Matched,
			"unmatched": plan.Unmatched,
			"total":     plan.TotalOperations(),
		},
	})
}

// ListRuns returns sync runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	opts := repository.RunListOptions{
		Status: models.RunStatus(c.Query("status")),
	}
	if limit := c.Query("limit"); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil {
			opts.Limit = v
		}
	}
	if offset := c.Query("offset"); offset != "" {
		if v, err := strconv.Atoi(offset); err == nil {
			opts.Offset = v
		}
	}

	runs, total, err := h.service.ListRuns(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  runs,
		"total": total,
	})
}

// GetRun returns a single sync run
func (h *RunHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	run, err := h.service.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": run})
}

// CancelRun cancels a running sync run
func (h *RunHandler) CancelRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.service.CancelRun(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// GetRunLogs returns the log entries of a sync run
func (h *RunHandler) GetRunLogs(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	opts := services.LogListOptions{
		Level: models.LogLevel(c.Query("level")),
	}
	if limit := c.Query("limit"); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil {
			opts.Limit = v
		}
	}

	logs, err := h.service.GetRunLogs(c.Request.Context(), id, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}
