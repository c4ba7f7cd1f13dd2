package controller_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	controller "voxpop/controllers"
	"voxpop/models"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.SetupJoinTable(&models.Contact{}, "Tags", &models.ContactTag{}); err != nil {
		t.Fatalf("failed to set up join table: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Tag{},
		&models.Contact{},
		&models.Segment{},
		&models.Campaign{},
		&models.ImportJob{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := models.CreateSystemTags(db); err != nil {
		t.Fatalf("failed to seed system tags: %v", err)
	}
	return db
}

// newTestApp wires the controllers under a stub auth middleware so handler
// behavior can be tested without a JWT round trip.
func newTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	user := models.User{Email: "staff@example.com", PasswordHash: "x", IsActive: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", &user)
		c.Locals("userID", user.ID)
		return c.Next()
	})

	quiet := log.New(io.Discard, "", 0)
	cc := controller.NewContactController(db, quiet)
	tc := controller.NewTagController(db, quiet)
	sc := controller.NewSegmentController(db, quiet)
	ic := controller.NewImportController(db, quiet)

	app.Post("/contacts", cc.CreateContact)
	app.Get("/contacts", cc.GetContacts)
	app.Post("/contacts/bulk/promote", cc.BulkPromote)
	app.Get("/contacts/:id", cc.GetContact)
	app.Post("/contacts/:id/tags", cc.AddTags)
	app.Post("/contacts/:id/promote", cc.PromoteContact)
	app.Post("/contacts/:id/blacklist", cc.BlacklistContact)
	app.Post("/contacts/:id/unblacklist", cc.UnblacklistContact)
	app.Delete("/tags/:id", tc.DeleteTag)
	app.Post("/segments", sc.CreateSegment)
	app.Post("/segments/preview", sc.PreviewFilters)
	app.Get("/imports/:id", ic.GetImport)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var decoded map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("invalid JSON response %s: %v", raw, err)
		}
	}
	return resp, decoded
}

func TestCreateContactNormalizesPhoneAndStartsAsLead(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)

	resp, body := doJSON(t, app, "POST", "/contacts", fiber.Map{
		"name":  "Maria Silva",
		"phone": "(11) 99999-0001",
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}

	data := body["data"].(map[string]interface{})
	if data["phone"] != "5511999990001" {
		t.Fatalf("phone = %v, want canonical form", data["phone"])
	}
	if data["contact_status"] != "lead" {
		t.Fatalf("contact_status = %v, want lead", data["contact_status"])
	}
}

func TestCreateContactDuplicatePhoneConflicts(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)

	doJSON(t, app, "POST", "/contacts", fiber.Map{"name": "Maria", "phone": "11999990001"})
	resp, _ := doJSON(t, app, "POST", "/contacts", fiber.Map{"name": "Outra", "phone": "(11) 99999-0001"})
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409 for same canonical phone", resp.StatusCode)
	}
}

func TestTransitionEndpoints(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)

	_, created := doJSON(t, app, "POST", "/contacts", fiber.Map{"name": "Maria", "phone": "11999990001"})
	id := created["data"].(map[string]interface{})["ID"].(float64)
	path := func(op string) string {
		return "/contacts/" + jsonFloat(id) + "/" + op
	}

	resp, body := doJSON(t, app, "POST", path("promote"), nil)
	if resp.StatusCode != fiber.StatusOK || body["contact_status"] != "apoiador" {
		t.Fatalf("promote: status=%d body=%v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, app, "POST", path("blacklist"), nil)
	if resp.StatusCode != fiber.StatusOK || body["contact_status"] != "blacklist" {
		t.Fatalf("blacklist: status=%d body=%v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, app, "POST", path("unblacklist"), nil)
	if resp.StatusCode != fiber.StatusOK || body["contact_status"] != "apoiador" {
		t.Fatalf("unblacklist should restore apoiador: status=%d body=%v", resp.StatusCode, body)
	}
}

func jsonFloat(f float64) string {
	raw, _ := json.Marshal(f)
	return string(raw)
}

func TestInvalidTransitionRejected(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)

	contact := models.Contact{Name: "Sem Status", Phone: "5511999990009"}
	if err := db.Create(&contact).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}

	resp, _ := doJSON(t, app, "POST", "/contacts/"+jsonFloat(float64(contact.ID))+"/promote", nil)
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 for illegal transition", resp.StatusCode)
	}
}

func TestAddTagsRejectsLifecycleTags(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)

	_, created := doJSON(t, app, "POST", "/contacts", fiber.Map{"name": "Maria", "phone": "11999990001"})
	id := created["data"].(map[string]interface{})["ID"].(float64)

	blacklist, err := models.GetSystemTag(db, models.SlugBlacklist)
	if err != nil {
		t.Fatalf("GetSystemTag failed: %v", err)
	}

	resp, _ := doJSON(t, app, "POST", "/contacts/"+jsonFloat(id)+"/tags", fiber.Map{
		"tag_ids": []uint{blacklist.ID},
	})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for lifecycle tag via generic endpoint", resp.StatusCode)
	}
}

func TestBulkPromoteSkipsIllegal(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)

	_, a := doJSON(t, app, "POST", "/contacts", fiber.Map{"name": "A", "phone": "11999990001"})
	_, b := doJSON(t, app, "POST", "/contacts", fiber.Map{"name": "B", "phone": "11999990002"})
	idA := uint(a["data"].(map[string]interface{})["ID"].(float64))
	idB := uint(b["data"].(map[string]interface{})["ID"].(float64))

	// B goes to blacklist, so only A is promotable
	contactB := models.Contact{Model: gorm.Model{ID: idB}}
	if err := contactB.AddToBlacklist(db); err != nil {
		t.Fatalf("AddToBlacklist failed: %v", err)
	}

	resp, body := doJSON(t, app, "POST", "/contacts/bulk/promote", fiber.Map{
		"contact_ids": []uint{idA, idB},
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d body=%v", resp.StatusCode, body)
	}
	if body["updated_count"].(float64) != 1 {
		t.Fatalf("updated_count = %v, want 1", body["updated_count"])
	}
}

func TestSystemTagDeleteRejected(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)

	lead, err := models.GetSystemTag(db, models.SlugLead)
	if err != nil {
		t.Fatalf("GetSystemTag failed: %v", err)
	}

	resp, _ := doJSON(t, app, "DELETE", "/tags/"+jsonFloat(float64(lead.ID)), nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestTagDeleteBlockedByActiveCampaign(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)

	tag := models.Tag{Name: "Evento"}
	if err := db.Create(&tag).Error; err != nil {
		t.Fatalf("create tag failed: %v", err)
	}
	campaign := models.Campaign{Name: "Disparo", Status: "running", Tags: []models.Tag{tag}}
	if err := db.Create(&campaign).Error; err != nil {
		t.Fatalf("create campaign failed: %v", err)
	}

	resp, _ := doJSON(t, app, "DELETE", "/tags/"+jsonFloat(float64(tag.ID)), nil)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409 while campaign is active", resp.StatusCode)
	}
}

func TestSegmentCreateResolvesCountSynchronously(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)

	doJSON(t, app, "POST", "/contacts", fiber.Map{
		"name": "Maria", "phone": "11999990001", "city": "Santos", "whatsapp_opt_in": true,
	})
	doJSON(t, app, "POST", "/contacts", fiber.Map{
		"name": "Pedro", "phone": "21999990002", "city": "Rio", "whatsapp_opt_in": true,
	})

	resp, body := doJSON(t, app, "POST", "/segments", fiber.Map{
		"name":    "Santos",
		"filters": fiber.Map{"city": "Santos"},
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d body=%v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]interface{})
	if data["cached_count"].(float64) != 1 {
		t.Fatalf("cached_count = %v, want 1 right after create", data["cached_count"])
	}
	if data["cached_at"] == nil {
		t.Fatalf("cached_at not set")
	}
}

func TestAdHocPreview(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)

	doJSON(t, app, "POST", "/contacts", fiber.Map{
		"name": "Maria", "phone": "11999990001", "whatsapp_opt_in": true,
	})
	doJSON(t, app, "POST", "/contacts", fiber.Map{
		"name": "Pedro", "phone": "21999990002",
	})

	resp, body := doJSON(t, app, "POST", "/segments/preview", fiber.Map{
		"filters": fiber.Map{},
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d body=%v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]interface{})
	if data["count"].(float64) != 1 {
		t.Fatalf("count = %v, want only the opt-in contact", data["count"])
	}
}

func TestGetImportScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db)

	var staff models.User
	if err := db.Where("email = ?", "staff@example.com").First(&staff).Error; err != nil {
		t.Fatalf("load staff user failed: %v", err)
	}
	other := models.User{Email: "other@example.com", PasswordHash: "x", IsActive: true}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("create other user failed: %v", err)
	}

	foreign := models.ImportJob{
		FileName:  "contatos.csv",
		FilePath:  "/tmp/contatos.csv",
		Status:    models.ImportStatusPending,
		CreatedBy: other.ID,
	}
	if err := db.Create(&foreign).Error; err != nil {
		t.Fatalf("create foreign job failed: %v", err)
	}
	mine := models.ImportJob{
		FileName:  "meus.csv",
		FilePath:  "/tmp/meus.csv",
		Status:    models.ImportStatusPending,
		CreatedBy: staff.ID,
	}
	if err := db.Create(&mine).Error; err != nil {
		t.Fatalf("create own job failed: %v", err)
	}

	// Another user's job reads as not found
	resp, _ := doJSON(t, app, "GET", "/imports/"+jsonFloat(float64(foreign.ID)), nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status for foreign job = %d, want 404", resp.StatusCode)
	}

	resp, body := doJSON(t, app, "GET", "/imports/"+jsonFloat(float64(mine.ID)), nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status for own job = %d body=%v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]interface{})
	if data["file_name"].(string) != "meus.csv" {
		t.Fatalf("file_name = %v, want meus.csv", data["file_name"])
	}
}
