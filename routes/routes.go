package routes

import (
	"log"
	"os"

	controller "voxpop/controllers"
	"voxpop/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

func SetupAuthRoutes(app *fiber.App, db *gorm.DB) {
	// Auth routes group with logging middleware
	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Public auth endpoints (no authentication required)
	auth.Post("/register", controller.Register)
	auth.Post("/login", controller.Login)
	auth.Post("/refresh", controller.RefreshToken)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Get("/me", controller.GetCurrentUser)
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB) {
	// Initialize controllers with their respective loggers
	contactController := controller.NewContactController(db, log.New(os.Stdout, "CONTACT: ", log.LstdFlags))
	tagController := controller.NewTagController(db, log.New(os.Stdout, "TAG: ", log.LstdFlags))
	segmentController := controller.NewSegmentController(db, log.New(os.Stdout, "SEGMENT: ", log.LstdFlags))
	importController := controller.NewImportController(db, log.New(os.Stdout, "IMPORT: ", log.LstdFlags))

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Contact routes
	contact := api.Group("/contacts")
	contact.Post("/", contactController.CreateContact)
	contact.Get("/", contactController.GetContacts)
	contact.Post("/bulk/promote", contactController.BulkPromote)
	contact.Post("/bulk/demote", contactController.BulkDemote)
	contact.Post("/bulk/blacklist", contactController.BulkBlacklist)
	contact.Post("/bulk/unblacklist", contactController.BulkUnblacklist)
	contact.Get("/:id", contactController.GetContact)
	contact.Put("/:id", contactController.UpdateContact)
	contact.Delete("/:id", contactController.DeleteContact)
	contact.Post("/:id/tags", contactController.AddTags)
	contact.Delete("/:id/tags", contactController.RemoveTags)
	contact.Post("/:id/promote", contactController.PromoteContact)
	contact.Post("/:id/demote", contactController.DemoteContact)
	contact.Post("/:id/blacklist", contactController.BlacklistContact)
	contact.Post("/:id/unblacklist", contactController.UnblacklistContact)

	// Tag routes
	tag := api.Group("/tags")
	tag.Post("/", tagController.CreateTag)
	tag.Get("/", tagController.GetTags)
	tag.Get("/:id", tagController.GetTag)
	tag.Put("/:id", tagController.UpdateTag)
	tag.Delete("/:id", tagController.DeleteTag)

	// Segment routes
	segment := api.Group("/segments")
	segment.Post("/", segmentController.CreateSegment)
	segment.Get("/", segmentController.GetSegments)
	segment.Post("/preview", segmentController.PreviewFilters)
	segment.Get("/:id", segmentController.GetSegment)
	segment.Put("/:id", segmentController.UpdateSegment)
	segment.Delete("/:id", segmentController.DeleteSegment)
	segment.Post("/:id/duplicate", segmentController.DuplicateSegment)
	segment.Get("/:id/preview", segmentController.PreviewSegment)

	// Import routes; job creation is rate limited
	imports := api.Group("/imports")
	imports.Post("/", middleware.ImportRateLimiter(), importController.CreateImport)
	imports.Post("/suggest", importController.SuggestMapping)
	imports.Get("/", importController.GetImports)
	imports.Get("/:id", importController.GetImport)

	// WebSocket route for import progress
	app.Get("/api/v1/imports/progress", websocket.New(func(c *websocket.Conn) {
		controller.HandleImportProgressWS(c)
	}))

	// Log initialization
	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Setup auth routes
	SetupAuthRoutes(app, db)

	// Setup API routes
	SetupAPIRoutes(app, db)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
