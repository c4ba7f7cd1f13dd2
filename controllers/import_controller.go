package controller

import (
	"crypto/rand"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"voxpop/config"
	"voxpop/models"
	"voxpop/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxImportFileSize = 10 << 20 // 10MB

type ImportController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewImportController(db *gorm.DB, logger *log.Logger) *ImportController {
	return &ImportController{
		DB:     db,
		Logger: logger,
	}
}

// ImportJobView decorates a job with derived progress fields.
type ImportJobView struct {
	models.ImportJob
	Progress        float64                 `json:"progress"`
	DurationSeconds int                     `json:"duration_seconds"`
	Errors          []models.ImportRowError `json:"errors"`
}

func importJobView(job models.ImportJob) ImportJobView {
	return ImportJobView{
		ImportJob:       job,
		Progress:        job.Progress(),
		DurationSeconds: job.DurationSeconds(),
		Errors:          job.RowErrors(),
	}
}

func randomFileName(original string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf) + filepath.Ext(original), nil
}

// CreateImport accepts a CSV upload and enqueues a pending import job. The
// file is processed asynchronously; the response carries the job id to poll.
func (ic *ImportController) CreateImport(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	file, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File upload error", err)
	}
	if file.Size > maxImportFileSize {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File too large (max 10MB)", nil)
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".csv") {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Only CSV files are accepted", nil)
	}

	// Optional explicit header mapping; the worker suggests one otherwise
	var mapping map[string]string
	if raw := c.FormValue("column_mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid column_mapping JSON", err)
		}
		for header, field := range mapping {
			if !utils.IsImportField(field) {
				return utils.ErrorResponse(c, fiber.StatusBadRequest,
					"Unknown import field for header "+header+": "+field, nil)
			}
		}
	}

	var autoTags []models.Tag
	if raw := c.FormValue("auto_tag_ids"); raw != "" {
		var ids []uint
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid auto_tag_ids JSON", err)
		}
		if len(ids) > 0 {
			if err := ic.DB.Where("id IN ? AND is_system = ?", ids, false).Find(&autoTags).Error; err != nil {
				return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch tags", err)
			}
			if len(autoTags) != len(ids) {
				return utils.ErrorResponse(c, fiber.StatusBadRequest, "One or more auto tags not found or not user tags", nil)
			}
		}
	}

	optIn := c.FormValue("opt_in") == "true"

	storedName, err := randomFileName(file.Filename)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to store file", err)
	}
	storedPath := filepath.Join(config.AppConfig.UploadDir, storedName)
	if err := c.SaveFile(file, storedPath); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to store file", err)
	}

	job := models.ImportJob{
		FileName:  file.Filename,
		FilePath:  storedPath,
		Status:    models.ImportStatusPending,
		AutoTags:  autoTags,
		OptIn:     optIn,
		CreatedBy: user.ID,
	}
	if mapping != nil {
		encoded, err := json.Marshal(mapping)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to encode mapping", err)
		}
		job.ColumnMapping = datatypes.JSON(encoded)
	}

	if err := ic.DB.Create(&job).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create import job", err)
	}

	ic.Logger.Printf("import job %d queued for file %s by user %d", job.ID, job.FileName, user.ID)

	return c.Status(fiber.StatusAccepted).JSON(utils.SuccessResponse(importJobView(job)))
}

// GetImports returns the user's import jobs, newest first
func (ic *ImportController) GetImports(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit > 100 {
		limit = 100
	}

	query := ic.DB.Model(&models.ImportJob{}).Where("created_by = ?", user.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count import jobs", err)
	}

	var jobs []models.ImportJob
	if err := query.Preload("AutoTags").
		Order("id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&jobs).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch import jobs", err)
	}

	views := make([]ImportJobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, importJobView(job))
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  views,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// findImportJob loads a job scoped to its creator. Jobs belonging to other
// users read as not found.
func findImportJob(db *gorm.DB, jobID, userID uint) (*models.ImportJob, error) {
	var job models.ImportJob
	if err := db.Where("created_by = ?", userID).First(&job, jobID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// GetImport returns one import job with progress and row errors
func (ic *ImportController) GetImport(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	job, err := findImportJob(ic.DB.Preload("AutoTags"), utils.ParseUint(c.Params("id")), user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Import job not found", nil)
	}
	return c.JSON(utils.SuccessResponse(importJobView(*job)))
}

// SuggestMapping reads the header row of an uploaded CSV and proposes a
// header-to-field mapping for the user to confirm before importing.
func (ic *ImportController) SuggestMapping(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File upload error", err)
	}
	if file.Size > maxImportFileSize {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File too large (max 10MB)", nil)
	}

	src, err := file.Open()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to open file", err)
	}
	defer src.Close()

	reader := csv.NewReader(src)
	header, err := reader.Read()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to read CSV header", err)
	}

	fields := make([]string, 0, len(utils.ImportFields))
	for field := range utils.ImportFields {
		fields = append(fields, field)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"headers":          header,
		"suggested":        utils.SuggestMapping(header),
		"available_fields": fields,
	}))
}
