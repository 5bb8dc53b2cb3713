package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quillpress/apiserver/internal/services"
	"github.com/quillpress/apiserver/internal/store"
	"github.com/quillpress/apiserver/types"
)

// CategoryHandler provides HTTP handlers for categories.
type CategoryHandler struct {
	categoryService *services.CategoryService
}

func NewCategoryHandler(categoryService *services.CategoryService) *CategoryHandler {
	return &CategoryHandler{categoryService: categoryService}
}

// CategoryRouter registers category routes. Listing needs a signed-in user,
// everything else an admin.
func CategoryRouter(
	r chi.Router,
	categoryService *services.CategoryService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewCategoryHandler(categoryService)

	r.With(authMiddleware).Get("/", handler.ListCategories)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware, RequireAdmin)
		r.Post("/", handler.CreateCategory)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handler.GetCategory)
			r.Put("/", handler.UpdateCategory)
			r.Delete("/", handler.DeleteCategory)
		})
	})
}

func (h *CategoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categoryService.List(r.Context())
	if err != nil {
		writeErrors(w, r, err)
		return
	}
	if len(categories) == 0 {
		writeMessage(w, http.StatusNotFound, "No categories found")
		return
	}

	items := make([]CategoryItem, 0, len(categories))
	for _, category := range categories {
		items = append(items, categoryItem(category))
	}
	writeJSON(w, http.StatusOK, CategoryListResponse{Categories: items})
}

func (h *CategoryHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidID)
		return
	}

	category, err := h.categoryService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, categoryNotFound(id.Hex()))
			return
		}
		writeErrors(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CategoryResponse{Category: categoryItem(category)})
}

func (h *CategoryHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrors(w, r, err)
		return
	}
	if blank(req.Name) {
		writeMessage(w, http.StatusBadRequest, "Please provide a category name")
		return
	}

	category, err := h.categoryService.Create(r.Context(), req.Name)
	if err != nil {
		writeErrors(w, r, err)
		return
	}

	writeMessage(w, http.StatusCreated, "category created with ID "+category.ID.Hex())
}

func (h *CategoryHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidID)
		return
	}

	var req CategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrors(w, r, err)
		return
	}
	if blank(req.Name) {
		writeMessage(w, http.StatusBadRequest, "Please provide a category name")
		return
	}

	if _, err := h.categoryService.Rename(r.Context(), id, req.Name); err != nil {
		switch {
		case errors.Is(err, services.ErrCategoryNameTaken):
			writeMessage(w, http.StatusBadRequest, "category name already exists, choose a different name")
		case errors.Is(err, store.ErrNotFound):
			writeMessage(w, http.StatusNotFound, categoryNotFound(id.Hex()))
		case errors.Is(err, services.ErrNotModified):
			writeNotModified(w)
		default:
			writeErrors(w, r, err)
		}
		return
	}

	writeMessage(w, http.StatusOK, fmt.Sprintf("category with ID %s was modified", id.Hex()))
}

func (h *CategoryHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidID)
		return
	}

	if err := h.categoryService.Delete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeMessage(w, http.StatusNotFound, categoryNotFound(id.Hex()))
		case errors.Is(err, services.ErrDeleteFailed):
			writeMessage(w, http.StatusExpectationFailed, msgExpectationFailed)
		default:
			writeErrors(w, r, err)
		}
		return
	}

	writeMessage(w, http.StatusOK, fmt.Sprintf("category with ID %s was deleted", id.Hex()))
}

type CategoryRequest struct {
	Name string `json:"name"`
}

// CategoryItem is the public projection of a category.
type CategoryItem struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type CategoryListResponse struct {
	Categories []CategoryItem `json:"categories"`
}

type CategoryResponse struct {
	Category CategoryItem `json:"category"`
}

func categoryItem(category types.Category) CategoryItem {
	return CategoryItem{ID: category.ID.Hex(), Name: category.Name}
}

func categoryNotFound(id string) string {
	return fmt.Sprintf("category with ID %s not found", id)
}
