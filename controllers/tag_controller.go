package controller

import (
	"errors"
	"log"
	"strings"

	"voxpop/models"
	"voxpop/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TagController struct {
	DB       *gorm.DB
	Logger   *log.Logger
	Campaign models.CampaignGate
}

func NewTagController(db *gorm.DB, logger *log.Logger) *TagController {
	return &TagController{
		DB:       db,
		Logger:   logger,
		Campaign: models.NewCampaignGate(db),
	}
}

// TagView decorates a tag with its contact count.
type TagView struct {
	models.Tag
	ContactCount int64 `json:"contact_count"`
}

type tagInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	Description string `json:"description" validate:"omitempty,max=500"`
	IsActive    *bool  `json:"is_active"`
}

// CreateTag creates a user tag. System tags are seeded at migration time
// and cannot be created through the API.
func (tc *TagController) CreateTag(c *fiber.Ctx) error {
	var input tagInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	name := strings.TrimSpace(input.Name)
	var existing models.Tag
	if err := tc.DB.Where("name = ?", name).First(&existing).Error; err == nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "A tag with this name already exists", nil)
	}

	tag := models.Tag{
		Name:        name,
		Description: input.Description,
		IsActive:    true,
	}
	if input.Color != "" {
		tag.Color = input.Color
	}
	if input.IsActive != nil {
		tag.IsActive = *input.IsActive
	}

	if err := tc.DB.Create(&tag).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create tag", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(tag))
}

// GetTags lists all tags partitioned into system and user tags, each with
// its current contact count.
func (tc *TagController) GetTags(c *fiber.Ctx) error {
	var tags []models.Tag
	if err := tc.DB.Order("is_system DESC, name").Find(&tags).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch tags", err)
	}

	system := make([]TagView, 0)
	user := make([]TagView, 0)
	for i := range tags {
		view := TagView{Tag: tags[i], ContactCount: tags[i].ContactCount(tc.DB)}
		if tags[i].IsSystem {
			system = append(system, view)
		} else {
			user = append(user, view)
		}
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"system_tags": system,
		"user_tags":   user,
	}))
}

// GetTag returns a single tag with its contact count
func (tc *TagController) GetTag(c *fiber.Ctx) error {
	var tag models.Tag
	if err := tc.DB.First(&tag, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Tag not found", nil)
	}
	return c.JSON(utils.SuccessResponse(TagView{Tag: tag, ContactCount: tag.ContactCount(tc.DB)}))
}

// UpdateTag renames or recolors a user tag. System tag names and slugs are
// fixed; only their color and description may change.
func (tc *TagController) UpdateTag(c *fiber.Ctx) error {
	var tag models.Tag
	if err := tc.DB.First(&tag, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Tag not found", nil)
	}

	var input tagInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	name := strings.TrimSpace(input.Name)
	if !tag.IsSystem && name != tag.Name {
		var existing models.Tag
		if err := tc.DB.Where("name = ? AND id <> ?", name, tag.ID).First(&existing).Error; err == nil {
			return utils.ErrorResponse(c, fiber.StatusConflict, "A tag with this name already exists", nil)
		}
		tag.Name = name
		tag.Slug = models.Slugify(name)
	}

	if input.Color != "" {
		tag.Color = input.Color
	}
	tag.Description = input.Description
	if input.IsActive != nil {
		tag.IsActive = *input.IsActive
	}

	if err := tc.DB.Save(&tag).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update tag", err)
	}
	return c.JSON(utils.SuccessResponse(tag))
}

// DeleteTag deletes a user tag and its contact links. System tags and tags
// referenced by active campaigns cannot be deleted.
func (tc *TagController) DeleteTag(c *fiber.Ctx) error {
	var tag models.Tag
	if err := tc.DB.First(&tag, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Tag not found", nil)
	}

	if tag.IsSystem {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "System tags cannot be deleted", nil)
	}

	referenced, err := tc.Campaign.IsTagReferenced(tag.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check campaign references", err)
	}
	if referenced {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Tag is referenced by an active campaign", nil)
	}

	err = tc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tag_id = ?", tag.ID).Delete(&models.ContactTag{}).Error; err != nil {
			return err
		}
		return tx.Delete(&tag).Error
	})
	if err != nil {
		if errors.Is(err, models.ErrSystemTag) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "System tags cannot be deleted", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete tag", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Tag deleted",
	})
}
