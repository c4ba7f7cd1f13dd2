package worker

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"voxpop/models"
	"voxpop/utils"

	"github.com/badoux/checkmail"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errorLogCap bounds the stored row error log so a fully broken file cannot
// bloat the job row. The error counter keeps counting past the cap.
const errorLogCap = 500

type ImportWorker struct {
	DB     *gorm.DB
	Logger *log.Logger

	// Startup and poll delays, shortened in tests.
	InitialDelay time.Duration
	PollInterval time.Duration
}

func NewImportWorker(db *gorm.DB, logger *log.Logger) *ImportWorker {
	return &ImportWorker{
		DB:           db,
		Logger:       logger,
		InitialDelay: 10 * time.Second,
		PollInterval: 2 * time.Second,
	}
}

func (iw *ImportWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(iw.InitialDelay)

	iw.Logger.Println("Import worker started")

	ticker := time.NewTicker(iw.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			iw.Logger.Println("Import worker shutting down...")
			return
		case <-ticker.C:
			iw.ProcessPendingJobs()
		}
	}
}

// ProcessPendingJobs drains the pending queue, oldest job first.
func (iw *ImportWorker) ProcessPendingJobs() {
	var jobs []models.ImportJob
	if err := iw.DB.Preload("AutoTags").
		Where("status = ?", models.ImportStatusPending).
		Order("id").
		Find(&jobs).Error; err != nil {
		iw.Logger.Printf("Error fetching pending imports: %v", err)
		return
	}

	for i := range jobs {
		if err := iw.ProcessJob(&jobs[i]); err != nil {
			iw.Logger.Printf("Error processing import job %d: %v", jobs[i].ID, err)
		}
	}
}

// ProcessJob runs a single import end to end. Row-level problems are logged
// on the job and never fail the run; only pipeline faults (unreadable file,
// broken CSV) move the job to failed.
func (iw *ImportWorker) ProcessJob(job *models.ImportJob) error {
	claimed, err := job.MarkProcessing(iw.DB)
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}
	if !claimed {
		return nil
	}

	file, err := os.Open(job.FilePath)
	if err != nil {
		return iw.failJob(job, "could not open uploaded file", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return iw.failJob(job, "could not parse CSV file", err)
	}
	if len(records) < 2 {
		return iw.failJob(job, "file must have a header row and at least one data row", nil)
	}

	header := records[0]
	rows := records[1:]

	if err := iw.DB.Model(&models.ImportJob{}).Where("id = ?", job.ID).
		Update("total_rows", len(rows)).Error; err != nil {
		return err
	}
	job.TotalRows = len(rows)

	mapping := iw.resolveMapping(job, header)
	if !hasField(mapping, "phone") || !hasField(mapping, "name") {
		return iw.failJob(job, "column mapping must cover at least name and phone", nil)
	}

	var (
		success    int
		errCount   int
		skipped    int
		rowErrors  []models.ImportRowError
		seenPhones = make(map[string]bool)
	)

	logRowError := func(row int, field, message string) {
		errCount++
		if len(rowErrors) < errorLogCap {
			rowErrors = append(rowErrors, models.ImportRowError{Row: row, Field: field, Message: message})
		}
	}

	for i, row := range rows {
		rowNum := i + 2 // 1-based, after the header

		fields := rowFields(header, row, mapping)

		result, field, message := iw.processRow(job, fields, seenPhones)
		switch result {
		case rowSuccess:
			success++
		case rowSkipped:
			skipped++
		case rowError:
			logRowError(rowNum, field, message)
		}

		// Persist counters as we go so pollers see live progress
		if err := iw.updateProgress(job, i+1, success, errCount, skipped, rowErrors); err != nil {
			iw.Logger.Printf("failed to persist progress for job %d: %v", job.ID, err)
		}
	}

	iw.Logger.Printf("import job %d finished: %d ok, %d errors, %d skipped of %d rows",
		job.ID, success, errCount, skipped, len(rows))

	return job.MarkCompleted(iw.DB)
}

// failJob reports a pipeline fault and moves the job to failed. Row-level
// problems do not come through here.
func (iw *ImportWorker) failJob(job *models.ImportJob, reason string, err error) error {
	if err == nil {
		err = errors.New(reason)
	}
	utils.LogError("import_pipeline_fault", err, map[string]interface{}{
		"job_id": job.ID,
		"file":   job.FileName,
		"reason": reason,
	})
	return job.MarkFailed(iw.DB, reason)
}

type rowResult int

const (
	rowSuccess rowResult = iota
	rowSkipped
	rowError
)

// resolveMapping prefers the mapping stored on the job and falls back to a
// header-based suggestion.
func (iw *ImportWorker) resolveMapping(job *models.ImportJob, header []string) map[string]string {
	if len(job.ColumnMapping) > 0 {
		var mapping map[string]string
		if err := json.Unmarshal(job.ColumnMapping, &mapping); err == nil && len(mapping) > 0 {
			return mapping
		}
	}
	mapping := utils.SuggestMapping(header)
	if encoded, err := json.Marshal(mapping); err == nil {
		iw.DB.Model(&models.ImportJob{}).Where("id = ?", job.ID).
			Update("column_mapping", datatypes.JSON(encoded))
	}
	return mapping
}

func hasField(mapping map[string]string, field string) bool {
	for _, f := range mapping {
		if f == field {
			return true
		}
	}
	return false
}

// rowFields projects a CSV row onto canonical contact fields.
func rowFields(header, row []string, mapping map[string]string) map[string]string {
	fields := make(map[string]string)
	for i, col := range header {
		if i >= len(row) {
			break
		}
		if field, ok := mapping[col]; ok {
			fields[field] = strings.TrimSpace(row[i])
		}
	}
	return fields
}

func parseImportBirthDate(value string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return &parsed, true
		}
	}
	return nil, false
}

func normalizeGender(value string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "":
		return "", true
	case "M", "MASCULINO", "MALE":
		return "M", true
	case "F", "FEMININO", "FEMALE":
		return "F", true
	case "O", "OUTRO", "OTHER":
		return "O", true
	}
	return "", false
}

// processRow validates and ingests one mapped row. A phone already present
// in the base updates the existing contact's empty fields instead of
// creating a duplicate.
func (iw *ImportWorker) processRow(job *models.ImportJob, fields map[string]string, seenPhones map[string]bool) (rowResult, string, string) {
	name := fields["name"]
	if name == "" {
		return rowError, "name", "name is required"
	}

	phone := utils.CleanPhoneNumber(fields["phone"])
	if phone == "" {
		return rowError, "phone", "phone is required"
	}
	if !utils.IsCompletePhone(phone) {
		return rowError, "phone", "phone is not a full Brazilian number"
	}
	if seenPhones[phone] {
		return rowSkipped, "", ""
	}
	seenPhones[phone] = true

	email := strings.ToLower(fields["email"])
	if email != "" {
		if err := checkmail.ValidateFormat(email); err != nil {
			return rowError, "email", "invalid email address"
		}
	}

	cpf := utils.CleanDocument(fields["cpf"])
	if cpf != "" && !utils.ValidateCPF(cpf) {
		return rowError, "cpf", "invalid CPF"
	}

	birthDate, ok := parseImportBirthDate(fields["birth_date"])
	if !ok {
		return rowError, "birth_date", "unrecognized date format"
	}

	gender, ok := normalizeGender(fields["gender"])
	if !ok {
		return rowError, "gender", "gender must be M, F or O"
	}

	var existing models.Contact
	err := iw.DB.Where("phone = ?", phone).First(&existing).Error
	if err == nil {
		if err := iw.updateExisting(job, &existing, fields, email, cpf, birthDate, gender); err != nil {
			return rowError, "", err.Error()
		}
		return rowSuccess, "", ""
	}
	if err != gorm.ErrRecordNotFound {
		return rowError, "", err.Error()
	}

	contact := models.Contact{
		Name:             name,
		Phone:            phone,
		Email:            email,
		CPF:              cpf,
		City:             fields["city"],
		Neighborhood:     fields["neighborhood"],
		State:            strings.ToUpper(fields["state"]),
		ZipCode:          utils.CleanDocument(fields["zip_code"]),
		ElectoralZone:    fields["electoral_zone"],
		ElectoralSection: fields["electoral_section"],
		BirthDate:        birthDate,
		Gender:           gender,
		WhatsappOptIn:    job.OptIn,
		Source:           models.SourceImport,
	}
	if contact.WhatsappOptIn {
		now := time.Now()
		contact.OptInDate = &now
	}

	if err := iw.DB.Create(&contact).Error; err != nil {
		return rowError, "", "failed to create contact"
	}
	if err := contact.SetAsLead(iw.DB); err != nil {
		iw.Logger.Printf("failed to set lead status for imported contact %d: %v", contact.ID, err)
	}
	if err := iw.applyAutoTags(job, contact.ID); err != nil {
		iw.Logger.Printf("failed to apply auto tags to contact %d: %v", contact.ID, err)
	}
	return rowSuccess, "", ""
}

// updateExisting fills empty fields on an already known contact and applies
// the job's auto tags. Existing values are never overwritten by an import.
func (iw *ImportWorker) updateExisting(job *models.ImportJob, contact *models.Contact, fields map[string]string, email, cpf string, birthDate *time.Time, gender string) error {
	updates := map[string]interface{}{}
	setIfEmpty := func(current, incoming, column string) {
		if current == "" && incoming != "" {
			updates[column] = incoming
		}
	}

	setIfEmpty(contact.Email, email, "email")
	setIfEmpty(contact.CPF, cpf, "cpf")
	setIfEmpty(contact.City, fields["city"], "city")
	setIfEmpty(contact.Neighborhood, fields["neighborhood"], "neighborhood")
	setIfEmpty(contact.State, strings.ToUpper(fields["state"]), "state")
	setIfEmpty(contact.ZipCode, utils.CleanDocument(fields["zip_code"]), "zip_code")
	setIfEmpty(contact.ElectoralZone, fields["electoral_zone"], "electoral_zone")
	setIfEmpty(contact.ElectoralSection, fields["electoral_section"], "electoral_section")
	setIfEmpty(contact.Gender, gender, "gender")
	if contact.BirthDate == nil && birthDate != nil {
		updates["birth_date"] = birthDate
	}

	if len(updates) > 0 {
		if err := iw.DB.Model(&models.Contact{}).Where("id = ?", contact.ID).
			Updates(updates).Error; err != nil {
			return err
		}
	}
	return iw.applyAutoTags(job, contact.ID)
}

func (iw *ImportWorker) applyAutoTags(job *models.ImportJob, contactID uint) error {
	for _, tag := range job.AutoTags {
		link := models.ContactTag{ContactID: contactID, TagID: tag.ID}
		if err := iw.DB.Where("contact_id = ? AND tag_id = ?", contactID, tag.ID).
			FirstOrCreate(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

func (iw *ImportWorker) updateProgress(job *models.ImportJob, processed, success, errCount, skipped int, rowErrors []models.ImportRowError) error {
	updates := map[string]interface{}{
		"processed_rows": processed,
		"success_count":  success,
		"error_count":    errCount,
		"skipped_count":  skipped,
	}
	if encoded, err := json.Marshal(rowErrors); err == nil {
		updates["errors_log"] = datatypes.JSON(encoded)
	}
	return iw.DB.Model(&models.ImportJob{}).Where("id = ?", job.ID).Updates(updates).Error
}
