package controller

import (
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"voxpop/models"
	"voxpop/utils"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ContactController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewContactController(db *gorm.DB, logger *log.Logger) *ContactController {
	return &ContactController{
		DB:     db,
		Logger: logger,
	}
}

// ContactView decorates a contact with its derived lifecycle status.
type ContactView struct {
	models.Contact
	ContactStatus models.ContactStatus `json:"contact_status"`
}

func contactView(contact models.Contact) ContactView {
	return ContactView{
		Contact:       contact,
		ContactStatus: models.DeriveStatus(contact.Tags),
	}
}

type contactInput struct {
	Name             string `json:"name" validate:"required,max=200"`
	Phone            string `json:"phone" validate:"required"`
	Email            string `json:"email" validate:"omitempty,max=254"`
	CPF              string `json:"cpf"`
	City             string `json:"city" validate:"omitempty,max=100"`
	Neighborhood     string `json:"neighborhood" validate:"omitempty,max=100"`
	State            string `json:"state" validate:"omitempty,max=2"`
	ZipCode          string `json:"zip_code" validate:"omitempty,max=9"`
	ElectoralZone    string `json:"electoral_zone" validate:"omitempty,max=10"`
	ElectoralSection string `json:"electoral_section" validate:"omitempty,max=10"`
	BirthDate        string `json:"birth_date"`
	Gender           string `json:"gender" validate:"omitempty,oneof=M F O m f o"`
	WhatsappOptIn    bool   `json:"whatsapp_opt_in"`
	Source           string `json:"source" validate:"omitempty,oneof=import form manual api"`
	TagIDs           []uint `json:"tag_ids"`
}

func parseBirthDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return &parsed, nil
		}
	}
	return nil, errors.New("birth_date must be YYYY-MM-DD or DD/MM/YYYY")
}

// CreateContact creates a contact, normalizes its phone and marks it as lead
func (cc *ContactController) CreateContact(c *fiber.Ctx) error {
	var input contactInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	phone := utils.CleanPhoneNumber(input.Phone)
	if !utils.IsCompletePhone(phone) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Phone must be a full Brazilian number with area code", nil)
	}

	if input.Email != "" {
		if err := checkmail.ValidateFormat(input.Email); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid email address", err)
		}
	}

	cpf := utils.CleanDocument(input.CPF)
	if cpf != "" && !utils.ValidateCPF(cpf) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid CPF", nil)
	}

	birthDate, err := parseBirthDate(input.BirthDate)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	// Phone is the dedup key across the whole base
	var existing models.Contact
	if err := cc.DB.Where("phone = ?", phone).First(&existing).Error; err == nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "A contact with this phone already exists", nil)
	}

	source := input.Source
	if source == "" {
		source = models.SourceManual
	}

	contact := models.Contact{
		Name:             strings.TrimSpace(input.Name),
		Phone:            phone,
		Email:            strings.ToLower(strings.TrimSpace(input.Email)),
		CPF:              cpf,
		City:             strings.TrimSpace(input.City),
		Neighborhood:     strings.TrimSpace(input.Neighborhood),
		State:            strings.ToUpper(strings.TrimSpace(input.State)),
		ZipCode:          utils.CleanDocument(input.ZipCode),
		ElectoralZone:    strings.TrimSpace(input.ElectoralZone),
		ElectoralSection: strings.TrimSpace(input.ElectoralSection),
		BirthDate:        birthDate,
		Gender:           strings.ToUpper(input.Gender),
		WhatsappOptIn:    input.WhatsappOptIn,
		Source:           source,
	}
	if contact.WhatsappOptIn {
		now := time.Now()
		contact.OptInDate = &now
	}

	if err := cc.DB.Create(&contact).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create contact", err)
	}

	if err := contact.SetAsLead(cc.DB); err != nil {
		cc.Logger.Printf("failed to set lead status for contact %d: %v", contact.ID, err)
	}

	if len(input.TagIDs) > 0 {
		if err := cc.attachTags(contact.ID, input.TagIDs); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
		}
	}

	if err := cc.DB.Preload("Tags").First(&contact, contact.ID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load contact", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(contactView(contact)))
}

// GetContacts returns a paginated contact listing with the same filter keys
// segments use, plus free text search over name, phone and email.
func (cc *ContactController) GetContacts(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	spec := models.FilterSpecFromQuery(func(key string) string { return c.Query(key) })
	query := spec.Apply(cc.DB.Model(&models.Contact{}), time.Now())

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		digits := utils.CleanPhoneNumber(search)
		query = query.Where(
			"LOWER(contacts.name) LIKE ? OR LOWER(contacts.email) LIKE ? OR contacts.phone LIKE ?",
			like, like, "%"+digits+"%",
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count contacts", err)
	}

	var contacts []models.Contact
	if err := query.Preload("Tags").
		Order("contacts.id DESC").
		Offset(offset).Limit(limit).
		Find(&contacts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contacts", err)
	}

	views := make([]ContactView, 0, len(contacts))
	for _, contact := range contacts {
		views = append(views, contactView(contact))
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  views,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetContact returns a single contact with tags and derived status
func (cc *ContactController) GetContact(c *fiber.Ctx) error {
	var contact models.Contact
	if err := cc.DB.Preload("Tags").First(&contact, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}
	return c.JSON(utils.SuccessResponse(contactView(contact)))
}

// UpdateContact updates profile fields. Lifecycle status is not writable
// here; it only moves through the transition endpoints.
func (cc *ContactController) UpdateContact(c *fiber.Ctx) error {
	var contact models.Contact
	if err := cc.DB.First(&contact, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}

	var input contactInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	phone := utils.CleanPhoneNumber(input.Phone)
	if !utils.IsCompletePhone(phone) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Phone must be a full Brazilian number with area code", nil)
	}
	if phone != contact.Phone {
		var existing models.Contact
		if err := cc.DB.Where("phone = ? AND id <> ?", phone, contact.ID).First(&existing).Error; err == nil {
			return utils.ErrorResponse(c, fiber.StatusConflict, "A contact with this phone already exists", nil)
		}
	}

	if input.Email != "" {
		if err := checkmail.ValidateFormat(input.Email); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid email address", err)
		}
	}

	cpf := utils.CleanDocument(input.CPF)
	if cpf != "" && !utils.ValidateCPF(cpf) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid CPF", nil)
	}

	birthDate, err := parseBirthDate(input.BirthDate)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	if input.WhatsappOptIn && !contact.WhatsappOptIn {
		now := time.Now()
		contact.OptInDate = &now
	}
	if !input.WhatsappOptIn {
		contact.OptInDate = nil
	}

	contact.Name = strings.TrimSpace(input.Name)
	contact.Phone = phone
	contact.Email = strings.ToLower(strings.TrimSpace(input.Email))
	contact.CPF = cpf
	contact.City = strings.TrimSpace(input.City)
	contact.Neighborhood = strings.TrimSpace(input.Neighborhood)
	contact.State = strings.ToUpper(strings.TrimSpace(input.State))
	contact.ZipCode = utils.CleanDocument(input.ZipCode)
	contact.ElectoralZone = strings.TrimSpace(input.ElectoralZone)
	contact.ElectoralSection = strings.TrimSpace(input.ElectoralSection)
	contact.BirthDate = birthDate
	contact.Gender = strings.ToUpper(input.Gender)
	contact.WhatsappOptIn = input.WhatsappOptIn

	if err := cc.DB.Save(&contact).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update contact", err)
	}

	if err := cc.DB.Preload("Tags").First(&contact, contact.ID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load contact", err)
	}
	return c.JSON(utils.SuccessResponse(contactView(contact)))
}

// DeleteContact soft deletes a contact
func (cc *ContactController) DeleteContact(c *fiber.Ctx) error {
	var contact models.Contact
	if err := cc.DB.First(&contact, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}
	if err := cc.DB.Delete(&contact).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete contact", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Contact deleted",
	})
}

// attachTags links user tags to a contact. Lifecycle tags are rejected so
// status can only move through the transition endpoints.
func (cc *ContactController) attachTags(contactID uint, tagIDs []uint) error {
	var tags []models.Tag
	if err := cc.DB.Where("id IN ?", tagIDs).Find(&tags).Error; err != nil {
		return err
	}
	if len(tags) != len(tagIDs) {
		return errors.New("one or more tags not found")
	}
	for _, tag := range tags {
		if tag.IsSystem {
			return errors.New("lifecycle tags can only change through status endpoints")
		}
	}
	for _, tag := range tags {
		link := models.ContactTag{ContactID: contactID, TagID: tag.ID}
		if err := cc.DB.Where("contact_id = ? AND tag_id = ?", contactID, tag.ID).
			FirstOrCreate(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

type tagIDsInput struct {
	TagIDs []uint `json:"tag_ids" validate:"required,min=1"`
}

// AddTags attaches user tags to a contact
func (cc *ContactController) AddTags(c *fiber.Ctx) error {
	var contact models.Contact
	if err := cc.DB.First(&contact, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}

	var input tagIDsInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if err := cc.attachTags(contact.ID, input.TagIDs); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	if err := cc.DB.Preload("Tags").First(&contact, contact.ID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load contact", err)
	}
	return c.JSON(utils.SuccessResponse(contactView(contact)))
}

// RemoveTags detaches user tags from a contact
func (cc *ContactController) RemoveTags(c *fiber.Ctx) error {
	var contact models.Contact
	if err := cc.DB.First(&contact, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}

	var input tagIDsInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var systemCount int64
	if err := cc.DB.Model(&models.Tag{}).
		Where("id IN ? AND is_system = ?", input.TagIDs, true).
		Count(&systemCount).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check tags", err)
	}
	if systemCount > 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "lifecycle tags can only change through status endpoints", nil)
	}

	if err := cc.DB.Where("contact_id = ? AND tag_id IN ?", contact.ID, input.TagIDs).
		Delete(&models.ContactTag{}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to remove tags", err)
	}

	if err := cc.DB.Preload("Tags").First(&contact, contact.ID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load contact", err)
	}
	return c.JSON(utils.SuccessResponse(contactView(contact)))
}

// transition runs one lifecycle transition and renders the updated status
func (cc *ContactController) transition(c *fiber.Ctx, message string, apply func(*models.Contact) error) error {
	var contact models.Contact
	if err := cc.DB.First(&contact, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}

	if err := apply(&contact); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Transition not allowed from current status", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to change status", err)
	}

	status, err := contact.Status(cc.DB)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to derive status", err)
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"message":        message,
		"contact_status": status,
	})
}

// PromoteContact moves a lead to apoiador
func (cc *ContactController) PromoteContact(c *fiber.Ctx) error {
	return cc.transition(c, "Contact promoted to apoiador", func(ct *models.Contact) error {
		return ct.Promote(cc.DB)
	})
}

// DemoteContact moves an apoiador back to lead
func (cc *ContactController) DemoteContact(c *fiber.Ctx) error {
	return cc.transition(c, "Contact demoted to lead", func(ct *models.Contact) error {
		return ct.Demote(cc.DB)
	})
}

// BlacklistContact blocks a contact from all campaigns
func (cc *ContactController) BlacklistContact(c *fiber.Ctx) error {
	return cc.transition(c, "Contact added to blacklist", func(ct *models.Contact) error {
		return ct.AddToBlacklist(cc.DB)
	})
}

// UnblacklistContact restores the status held before blacklisting
func (cc *ContactController) UnblacklistContact(c *fiber.Ctx) error {
	return cc.transition(c, "Contact removed from blacklist", func(ct *models.Contact) error {
		return ct.RemoveFromBlacklist(cc.DB)
	})
}

type bulkContactsInput struct {
	ContactIDs []uint `json:"contact_ids" validate:"required,min=1,max=1000"`
}

// bulkTransition applies a transition to many contacts, skipping the ones
// for which it is not legal. Reporting is aggregate only.
func (cc *ContactController) bulkTransition(c *fiber.Ctx, message string, apply func(*models.Contact) error) error {
	var input bulkContactsInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var contacts []models.Contact
	if err := cc.DB.Where("id IN ?", input.ContactIDs).Find(&contacts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contacts", err)
	}

	updated := 0
	for i := range contacts {
		if err := apply(&contacts[i]); err != nil {
			if errors.Is(err, models.ErrInvalidTransition) {
				continue
			}
			cc.Logger.Printf("bulk transition failed for contact %d: %v", contacts[i].ID, err)
			continue
		}
		updated++
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"message":       message,
		"updated_count": updated,
	})
}

// BulkPromote promotes many leads to apoiador
func (cc *ContactController) BulkPromote(c *fiber.Ctx) error {
	return cc.bulkTransition(c, "Contacts promoted to apoiador", func(ct *models.Contact) error {
		return ct.Promote(cc.DB)
	})
}

// BulkDemote demotes many apoiadores to lead
func (cc *ContactController) BulkDemote(c *fiber.Ctx) error {
	return cc.bulkTransition(c, "Contacts demoted to lead", func(ct *models.Contact) error {
		return ct.Demote(cc.DB)
	})
}

// BulkBlacklist blacklists many contacts
func (cc *ContactController) BulkBlacklist(c *fiber.Ctx) error {
	return cc.bulkTransition(c, "Contacts added to blacklist", func(ct *models.Contact) error {
		return ct.AddToBlacklist(cc.DB)
	})
}

// BulkUnblacklist restores many contacts from the blacklist
func (cc *ContactController) BulkUnblacklist(c *fiber.Ctx) error {
	return cc.bulkTransition(c, "Contacts removed from blacklist", func(ct *models.Contact) error {
		return ct.RemoveFromBlacklist(cc.DB)
	})
}
