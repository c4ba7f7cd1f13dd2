package controller

import (
	"encoding/json"
	"log"
	"time"

	"voxpop/models"
	"voxpop/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const previewSampleSize = 10

type SegmentController struct {
	DB       *gorm.DB
	Logger   *log.Logger
	Campaign models.CampaignGate
}

func NewSegmentController(db *gorm.DB, logger *log.Logger) *SegmentController {
	return &SegmentController{
		DB:       db,
		Logger:   logger,
		Campaign: models.NewCampaignGate(db),
	}
}

type segmentInput struct {
	Name        string          `json:"name" validate:"required,max=150"`
	Description string          `json:"description" validate:"omitempty,max=500"`
	Filters     json.RawMessage `json:"filters"`
	IsActive    *bool           `json:"is_active"`
}

// CreateSegment persists a named filter and resolves its count synchronously
// so the response already carries a fresh cached_count.
func (sc *SegmentController) CreateSegment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input segmentInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if _, err := models.ParseFilterSpec(input.Filters); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid filter object", err)
	}

	segment := models.Segment{
		Name:        input.Name,
		Description: input.Description,
		Filters:     datatypes.JSON(input.Filters),
		IsActive:    true,
		CreatedBy:   user.ID,
	}
	if input.IsActive != nil {
		segment.IsActive = *input.IsActive
	}

	if err := sc.DB.Create(&segment).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create segment", err)
	}

	if _, err := segment.RefreshCount(sc.DB); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to resolve segment audience", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(segment))
}

// GetSegments lists segments with their cached counts
func (sc *SegmentController) GetSegments(c *fiber.Ctx) error {
	var segments []models.Segment
	if err := sc.DB.Order("name").Find(&segments).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch segments", err)
	}
	return c.JSON(utils.SuccessResponse(segments))
}

// GetSegment returns a single segment with its cached counts
func (sc *SegmentController) GetSegment(c *fiber.Ctx) error {
	var segment models.Segment
	if err := sc.DB.First(&segment, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Segment not found", nil)
	}
	return c.JSON(utils.SuccessResponse(segment))
}

// UpdateSegment rewrites the filter and refreshes the cached count in the
// same request.
func (sc *SegmentController) UpdateSegment(c *fiber.Ctx) error {
	var segment models.Segment
	if err := sc.DB.First(&segment, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Segment not found", nil)
	}

	var input segmentInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if _, err := models.ParseFilterSpec(input.Filters); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid filter object", err)
	}

	segment.Name = input.Name
	segment.Description = input.Description
	segment.Filters = datatypes.JSON(input.Filters)
	if input.IsActive != nil {
		segment.IsActive = *input.IsActive
	}

	if err := sc.DB.Save(&segment).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update segment", err)
	}

	if _, err := segment.RefreshCount(sc.DB); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to resolve segment audience", err)
	}

	return c.JSON(utils.SuccessResponse(segment))
}

// DeleteSegment soft deletes a segment unless an active campaign targets it
func (sc *SegmentController) DeleteSegment(c *fiber.Ctx) error {
	var segment models.Segment
	if err := sc.DB.First(&segment, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Segment not found", nil)
	}

	referenced, err := sc.Campaign.IsSegmentReferenced(segment.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check campaign references", err)
	}
	if referenced {
		return utils.ErrorResponse(c, fiber.StatusConflict, models.ErrSegmentInUse.Error(), nil)
	}

	if err := sc.DB.Delete(&segment).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete segment", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Segment deleted",
	})
}

// DuplicateSegment copies a segment's filter into a new independent segment
func (sc *SegmentController) DuplicateSegment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var segment models.Segment
	if err := sc.DB.First(&segment, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Segment not found", nil)
	}

	copied := models.Segment{
		Name:        segment.Name + " (cópia)",
		Description: segment.Description,
		Filters:     segment.Filters,
		IsActive:    segment.IsActive,
		CreatedBy:   user.ID,
	}
	if err := sc.DB.Create(&copied).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to duplicate segment", err)
	}

	if _, err := copied.RefreshCount(sc.DB); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to resolve segment audience", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(copied))
}

// PreviewSegment resolves a persisted segment's audience, refreshing the
// cached count as a side effect.
func (sc *SegmentController) PreviewSegment(c *fiber.Ctx) error {
	var segment models.Segment
	if err := sc.DB.First(&segment, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Segment not found", nil)
	}

	count, err := segment.RefreshCount(sc.DB)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to resolve segment audience", err)
	}

	sample, err := segment.Sample(sc.DB, previewSampleSize)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to sample segment audience", err)
	}

	views := make([]ContactView, 0, len(sample))
	for _, contact := range sample {
		views = append(views, contactView(contact))
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"count":           count,
		"lead_count":      segment.LeadCount,
		"apoiador_count":  segment.ApoiadorCount,
		"blacklist_count": segment.BlacklistCount,
		"sample":          views,
	}))
}

type adHocPreviewInput struct {
	Filters json.RawMessage `json:"filters"`
}

// PreviewFilters resolves an ad hoc filter object without persisting it.
// Used by the segment builder while the user edits filter rows.
func (sc *SegmentController) PreviewFilters(c *fiber.Ctx) error {
	var input adHocPreviewInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	spec, err := models.ParseFilterSpec(input.Filters)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid filter object", err)
	}

	count, sample, err := models.ResolveAudience(sc.DB, spec, time.Now(), previewSampleSize)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to resolve audience", err)
	}

	views := make([]ContactView, 0, len(sample))
	for _, contact := range sample {
		views = append(views, contactView(contact))
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"count":       count,
		"sample":      views,
		"active_keys": spec.ActiveKeys(),
	}))
}
