package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/media"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
)

// crud описывает сервис сущности с операциями, возвращающими обновлённый список.
type crud[T any] interface {
	All(ctx context.Context) ([]T, error)
	Get(ctx context.Context, key string) (*T, error)
	Create(ctx context.Context, item *T) ([]T, error)
	Update(ctx context.Context, key string, item *T) ([]T, error)
	Delete(ctx context.Context, key string) ([]T, error)
}

// mountCRUD регистрирует GET /, GET /{id}, POST /, PUT /{id}, DELETE /{id}.
func mountCRUD[T any](r chi.Router, h *Handler, name string, svc crud[T]) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.All(r.Context())
		if err != nil {
			h.fail(w, "load "+name, err)
			return
		}
		writeData(w, http.StatusOK, items)
	})
	r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
		item, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, "load "+name, err)
			return
		}
		writeData(w, http.StatusOK, item)
	})
	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		var item T
		if err := decodeJSON(r, &item); err != nil {
			badRequest(w, "invalid request body")
			return
		}
		items, err := svc.Create(r.Context(), &item)
		if err != nil {
			h.fail(w, "create "+name, err)
			return
		}
		writeData(w, http.StatusCreated, items)
	})
	r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
		var item T
		if err := decodeJSON(r, &item); err != nil {
			badRequest(w, "invalid request body")
			return
		}
		items, err := svc.Update(r.Context(), chi.URLParam(r, "id"), &item)
		if err != nil {
			h.fail(w, "update "+name, err)
			return
		}
		writeData(w, http.StatusOK, items)
	})
	r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.Delete(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, "delete "+name, err)
			return
		}
		writeData(w, http.StatusOK, items)
	})
}

func respond[T any](h *Handler, op string, load func(ctx context.Context) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := load(r.Context())
		if err != nil {
			h.fail(w, op, err)
			return
		}
		writeData(w, http.StatusOK, data)
	}
}

// ListPackages возвращает все туристические пакеты.
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	respond(h, "load packages", h.catalog.Packages.All)(w, r)
}

// GetPackage возвращает пакет с программой по дням.
func (h *Handler) GetPackage(w http.ResponseWriter, r *http.Request) {
	respond(h, "load package", func(ctx context.Context) (*model.PackageDetails, error) {
		return h.catalog.Packages.Details(ctx, chi.URLParam(r, "id"))
	})(w, r)
}

// ListGallery возвращает изображения галереи.
func (h *Handler) ListGallery(w http.ResponseWriter, r *http.Request) {
	respond(h, "load gallery", h.catalog.Gallery.All)(w, r)
}

// ListBlog возвращает опубликованные записи блога.
func (h *Handler) ListBlog(w http.ResponseWriter, r *http.Request) {
	respond(h, "load blog", h.catalog.Blog.Published)(w, r)
}

// GetBlogPost возвращает опубликованную запись блога.
func (h *Handler) GetBlogPost(w http.ResponseWriter, r *http.Request) {
	respond(h, "load blog post", func(ctx context.Context) (*model.BlogPost, error) {
		return h.catalog.Blog.PublishedPost(ctx, chi.URLParam(r, "id"))
	})(w, r)
}

// ListTestimonials возвращает одобренные отзывы.
func (h *Handler) ListTestimonials(w http.ResponseWriter, r *http.Request) {
	respond(h, "load testimonials", h.catalog.Testimonials.Approved)(w, r)
}

// SubmitTestimonial принимает отзыв посетителя на модерацию.
func (h *Handler) SubmitTestimonial(w http.ResponseWriter, r *http.Request) {
	var item model.Testimonial
	if err := decodeJSON(r, &item); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	created, err := h.catalog.Testimonials.Submit(r.Context(), &item)
	if err != nil {
		h.fail(w, "submit testimonial", err)
		return
	}
	writeData(w, http.StatusCreated, created)
}

// ListAdvertisements возвращает рекламу, показываемую сейчас.
func (h *Handler) ListAdvertisements(w http.ResponseWriter, r *http.Request) {
	respond(h, "load advertisements", h.catalog.Advertisements.Running)(w, r)
}

// ListKidsCenter возвращает опубликованные записи детского центра.
func (h *Handler) ListKidsCenter(w http.ResponseWriter, r *http.Request) {
	respond(h, "load kids center", h.catalog.KidsCenter.Published)(w, r)
}

// Apply принимает заявку на стажировку в виде JSON или формы с файлом resume.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	var (
		app    model.InternshipApplication
		resume *media.File
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, 2*media.MaxFileSize)
		if err := r.ParseMultipartForm(media.MaxFileSize); err != nil {
			badRequest(w, "invalid multipart form")
			return
		}
		app = applicationFromForm(r)
		if r.MultipartForm != nil && len(r.MultipartForm.File["resume"]) > 0 {
			f, err := media.ReadMultipart(r.MultipartForm.File["resume"][0])
			if err != nil {
				h.fail(w, "read resume", err)
				return
			}
			resume = &f
		}
	} else if err := decodeJSON(r, &app); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	created, err := h.catalog.Internships.Apply(r.Context(), &app, resume)
	if err != nil {
		h.fail(w, "submit application", err)
		return
	}
	writeData(w, http.StatusCreated, created)
}

func applicationFromForm(r *http.Request) model.InternshipApplication {
	return model.InternshipApplication{
		FirstName:      r.FormValue("first_name"),
		LastName:       r.FormValue("last_name"),
		Email:          strings.TrimSpace(r.FormValue("email")),
		Phone:          r.FormValue("phone"),
		Country:        r.FormValue("country"),
		FieldOfStudy:   r.FormValue("field_of_study"),
		EducationLevel: r.FormValue("education_level"),
		Experience:     r.FormValue("experience"),
		Motivation:     r.FormValue("motivation"),
		Availability:   r.FormValue("availability"),
	}
}

// ListItineraries возвращает программу пакета.
func (h *Handler) ListItineraries(w http.ResponseWriter, r *http.Request) {
	respond(h, "load itinerary", func(ctx context.Context) ([]model.PackageItinerary, error) {
		return h.catalog.Packages.Itineraries(ctx, chi.URLParam(r, "id"))
	})(w, r)
}

// CreateItinerary добавляет день в программу пакета.
func (h *Handler) CreateItinerary(w http.ResponseWriter, r *http.Request) {
	var it model.PackageItinerary
	if err := decodeJSON(r, &it); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	items, err := h.catalog.Packages.CreateItinerary(r.Context(), chi.URLParam(r, "id"), &it)
	if err != nil {
		h.fail(w, "create itinerary", err)
		return
	}
	writeData(w, http.StatusCreated, items)
}

// UpdateItinerary изменяет день программы пакета.
func (h *Handler) UpdateItinerary(w http.ResponseWriter, r *http.Request) {
	var it model.PackageItinerary
	if err := decodeJSON(r, &it); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	items, err := h.catalog.Packages.UpdateItinerary(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itineraryID"), &it)
	if err != nil {
		h.fail(w, "update itinerary", err)
		return
	}
	writeData(w, http.StatusOK, items)
}

// DeleteItinerary удаляет день программы пакета.
func (h *Handler) DeleteItinerary(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Packages.DeleteItinerary(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itineraryID"))
	if err != nil {
		h.fail(w, "delete itinerary", err)
		return
	}
	writeData(w, http.StatusOK, items)
}

type statusRequest struct {
	Status model.InternshipStatus `json:"status"`
}

// SetInternshipStatus переводит заявку на стажировку в новый статус.
func (h *Handler) SetInternshipStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	items, err := h.catalog.Internships.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.fail(w, "update application", err)
		return
	}
	writeData(w, http.StatusOK, items)
}

// ListSystemLogs возвращает последние записи журнала.
func (h *Handler) ListSystemLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	respond(h, "load system logs", func(ctx context.Context) ([]model.SystemLog, error) {
		return h.catalog.Logs.Recent(ctx, r.URL.Query().Get("level"), limit)
	})(w, r)
}

// ListSettings возвращает все настройки.
func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	respond(h, "load settings", h.catalog.Settings.All)(w, r)
}

// SaveSetting сохраняет настройку с ключом из адреса.
func (h *Handler) SaveSetting(w http.ResponseWriter, r *http.Request) {
	var item model.SystemSetting
	if err := decodeJSON(r, &item); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	item.Key = chi.URLParam(r, "key")
	items, err := h.catalog.Settings.Upsert(r.Context(), &item)
	if err != nil {
		h.fail(w, "save setting", err)
		return
	}
	writeData(w, http.StatusOK, items)
}

// ListUserRoles возвращает роли пользователей.
func (h *Handler) ListUserRoles(w http.ResponseWriter, r *http.Request) {
	respond(h, "load user roles", h.catalog.Roles.List)(w, r)
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

// AssignRole назначает роль пользователю.
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	items, err := h.catalog.Roles.Assign(r.Context(), chi.URLParam(r, "userID"), req.Role)
	if err != nil {
		h.fail(w, "assign role", err)
		return
	}
	writeData(w, http.StatusOK, items)
}
