package handlers

import (
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/clientcomm/core/internal/services"
	"github.com/gin-gonic/gin"
)

// CourtHandler accepts court date exports
type CourtHandler struct {
	court *services.CourtReminderService
}

// NewCourtHandler creates a new CourtHandler instance
func NewCourtHandler(court *services.CourtReminderService) *CourtHandler {
	return &CourtHandler{court: court}
}

// Upload imports a court date file and its location lookup. Both arrive as
// multipart fields named dates and locations, in .csv or .xlsx.
// POST /api/court_dates
func (h *CourtHandler) Upload(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	datesFile, err := c.FormFile("dates")
	if err != nil {
		respondFail(c, http.StatusBadRequest, "VALIDATION_ERROR", "dates file is required")
		return
	}
	locationsFile, err := c.FormFile("locations")
	if err != nil {
		respondFail(c, http.StatusBadRequest, "VALIDATION_ERROR", "locations file is required")
		return
	}

	var dates []services.CourtDate
	err = readUpload(datesFile, func(f multipart.File) error {
		dates, err = services.ReadCourtDates(datesFile.Filename, f)
		return err
	})
	if err != nil {
		respondFail(c, http.StatusBadRequest, "IMPORT_ERROR", err.Error())
		return
	}

	var locations map[string]string
	err = readUpload(locationsFile, func(f multipart.File) error {
		locations, err = services.ReadLocations(locationsFile.Filename, f)
		return err
	})
	if err != nil {
		respondFail(c, http.StatusBadRequest, "IMPORT_ERROR", err.Error())
		return
	}

	result, err := h.court.Import(c.Request.Context(), services.ImportRequest{
		UserID:    userID,
		FileName:  datesFile.Filename,
		Dates:     dates,
		Locations: locations,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, gin.H{
		"batch_id":  result.Batch.ID,
		"scheduled": result.Scheduled,
		"skipped":   result.Skipped,
	})
}

func readUpload(header *multipart.FileHeader, read func(multipart.File) error) error {
	f, err := header.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", header.Filename, err)
	}
	defer f.Close()
	return read(f)
}
