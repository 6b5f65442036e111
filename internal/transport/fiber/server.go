// Package fiber is the REST transport adapter: it maps FHIR's verb/path
// table onto Fiber routes and translates HTTP request shape (headers, query
// string, path params) into calls on the operation engine and search
// compiler.
package fiber

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"fhirstore/internal/catalog"
	"fhirstore/internal/operation"
	"fhirstore/internal/search"
)

// Handler holds the dependencies every route needs.
type Handler struct {
	Engine   *operation.Engine
	Compiler *search.Compiler
	Catalog  *catalog.Catalog
	Log      *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(engine *operation.Engine, compiler *search.Compiler, cat *catalog.Catalog, log *slog.Logger) *Handler {
	return &Handler{Engine: engine, Compiler: compiler, Catalog: cat, Log: log}
}

// RegisterRoutes wires every resource-level and whole-system route onto app.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Get("/metadata", h.CapabilityStatement)
	app.Post("/", h.SystemBundle)

	r := app.Group("/:type")
	r.Post("/", h.Create)
	r.Post("/_search", h.SearchByPost)
	r.Get("/", h.Search)
	r.Get("/_history", h.TypeHistory)
	r.Get("/:id", h.Read)
	r.Put("/:id", h.Update)
	r.Patch("/:id", h.Patch)
	r.Delete("/", h.Delete)
	r.Delete("/:id", h.Delete)
	r.Get("/:id/_history", h.History)
	r.Get("/:id/_history/:vid", h.VRead)
	r.Get("/:id/$everything", h.Everything)
	r.Get("/:id/$meta", h.GetMeta)
	r.Post("/:id/$meta-add", h.AddMeta)
	r.Post("/:id/$meta-delete", h.DeleteMeta)
	r.Post("/$validate", h.ValidateNew)
	r.Post("/:id/$validate", h.ValidateExisting)
}
