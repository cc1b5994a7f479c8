package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/Munezachristian/explore-kigali-hub-sub001/internal/middleware"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/media"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса kigalihub.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(h.authMiddleware.Middleware)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(h.authLimiter.Middleware).Post("/signup", h.SignUp)
			r.With(h.authLimiter.Middleware).Post("/signin", h.SignIn)
			r.Post("/signout", h.SignOut)
			r.Get("/me", h.Me)
			r.With(custommiddleware.RequireAuth).Put("/me", h.UpdateMe)
		})

		r.Get("/packages", h.ListPackages)
		r.Get("/packages/{id}", h.GetPackage)
		r.Get("/gallery", h.ListGallery)
		r.Get("/blog", h.ListBlog)
		r.Get("/blog/{id}", h.GetBlogPost)
		r.Get("/testimonials", h.ListTestimonials)
		r.With(h.submitLimiter.Middleware).Post("/testimonials", h.SubmitTestimonial)
		r.Get("/advertisements", h.ListAdvertisements)
		r.Get("/kids-center", h.ListKidsCenter)
		r.With(h.submitLimiter.Middleware).Post("/internships", h.Apply)

		r.Route("/admin", h.adminRoutes)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errorDetail{Code: "not_found", Message: http.StatusText(http.StatusNotFound)})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errorDetail{Code: "method_not_allowed", Message: http.StatusText(http.StatusMethodNotAllowed)})
	})

	return r
}

func (h *Handler) adminRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(custommiddleware.RequireRole(model.RoleAdmin, model.RoleTourManager))

		r.Route("/packages", func(r chi.Router) {
			r.Post("/upload", h.Upload(media.BucketPackages))
			mountCRUD[model.Package](r, h, "package", h.catalog.Packages)

			r.Route("/{id}/itineraries", func(r chi.Router) {
				r.Get("/", h.ListItineraries)
				r.Post("/", h.CreateItinerary)
				r.Put("/{itineraryID}", h.UpdateItinerary)
				r.Delete("/{itineraryID}", h.DeleteItinerary)
			})
		})
		r.Route("/blog", func(r chi.Router) {
			mountCRUD[model.BlogPost](r, h, "blog post", h.catalog.Blog)
		})
		r.Route("/gallery", func(r chi.Router) {
			r.Post("/upload", h.Upload(media.BucketGallery))
			mountCRUD[model.GalleryItem](r, h, "gallery item", h.catalog.Gallery)
		})
		r.Route("/advertisements", func(r chi.Router) {
			r.Post("/upload", h.Upload(media.BucketAdvertisements))
			mountCRUD[model.Advertisement](r, h, "advertisement", h.catalog.Advertisements)
		})
		r.Route("/testimonials", func(r chi.Router) {
			mountCRUD[model.Testimonial](r, h, "testimonial", h.catalog.Testimonials)
		})
		r.Route("/kids-center", func(r chi.Router) {
			mountCRUD[model.KidsCenterPost](r, h, "kids center post", h.catalog.KidsCenter)
		})
		r.Route("/internships", func(r chi.Router) {
			r.Get("/", respond(h, "load applications", h.catalog.Internships.All))
			r.Put("/{id}/status", h.SetInternshipStatus)
			r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
				items, err := h.catalog.Internships.Delete(r.Context(), chi.URLParam(r, "id"))
				if err != nil {
					h.fail(w, "delete application", err)
					return
				}
				writeData(w, http.StatusOK, items)
			})
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(custommiddleware.RequireRole(model.RoleAdmin, model.RoleAccountant))

		r.Get("/finance/summary", h.FinanceSummary)
		r.Get("/finance/export", h.FinanceExport)
	})

	r.Group(func(r chi.Router) {
		r.Use(custommiddleware.RequireRole(model.RoleAdmin))

		r.Get("/system-logs", h.ListSystemLogs)
		r.Get("/settings", h.ListSettings)
		r.Put("/settings/{key}", h.SaveSetting)
		r.Get("/users/roles", h.ListUserRoles)
		r.Put("/users/{userID}/role", h.AssignRole)
	})
}
