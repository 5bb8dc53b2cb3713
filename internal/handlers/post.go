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

const (
	formFieldTitle    = "title"
	formFieldContent  = "content"
	formFieldCategory = "category"
	formFieldImage    = "image"
)

// PostHandler provides HTTP handlers for posts.
type PostHandler struct {
	postService    *services.PostService
	images         ImageStore
	maxUploadBytes int64
}

// NewPostHandler constructs a handler with the provided services.
func NewPostHandler(postService *services.PostService, images ImageStore, maxUploadBytes int64) *PostHandler {
	return &PostHandler{
		postService:    postService,
		images:         images,
		maxUploadBytes: maxUploadBytes,
	}
}

// PostRouter registers post routes on the given router.
func PostRouter(
	r chi.Router,
	postService *services.PostService,
	images ImageStore,
	maxUploadBytes int64,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewPostHandler(postService, images, maxUploadBytes)

	r.Get("/", handler.ListPosts)
	r.Get("/get/categories", handler.ListPostsByCategory)
	r.Get("/get/likes/{id}", handler.GetTotalLikes)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", handler.CreatePost)
		r.Get("/get/count", handler.CountPosts)
		r.Put("/toggle/likes/{id}", handler.ToggleLike)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handler.GetPost)
			r.Put("/", handler.UpdatePost)
			r.Delete("/", handler.DeletePost)
		})
	})
}

func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.postService.List(r.Context())
	if err != nil {
		writeErrors(w, r, err)
		return
	}
	if len(posts) == 0 {
		writeMessage(w, http.StatusNotFound, "No posts found")
		return
	}
	writeJSON(w, http.StatusOK, PostListResponse{Posts: posts})
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidID)
		return
	}

	post, err := h.postService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "No post found")
			return
		}
		writeErrors(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PostResponse{Post: post})
}

func (h *PostHandler) ListPostsByCategory(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	posts, err := h.postService.ListByCategory(r.Context(), category)
	if err != nil {
		writeErrors(w, r, err)
		return
	}
	if len(posts) == 0 {
		writeMessage(w, http.StatusNotFound, fmt.Sprintf("post with category %s not found", category))
		return
	}
	writeJSON(w, http.StatusOK, FilteredPostsResponse{FilteredPosts: posts})
}

func (h *PostHandler) CountPosts(w http.ResponseWriter, r *http.Request) {
	count, err := h.postService.Count(r.Context())
	if err != nil {
		writeErrors(w, r, err)
		return
	}
	if count == 0 {
		writeMessage(w, http.StatusNotFound, "No posts found")
		return
	}
	writeJSON(w, http.StatusOK, PostsCountResponse{PostsCount: count})
}

func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())

	form, err := parseRequestForm(w, r, formFieldImage, h.maxUploadBytes)
	if err != nil {
		writeFormError(w, r, err)
		return
	}
	image, err := saveUpload(r, h.images, form.file)
	if err != nil {
		writeFormError(w, r, err)
		return
	}

	post, err := h.postService.Create(r.Context(), identity.UserID, services.CreatePostInput{
		Title:    deref(form.value(formFieldTitle)),
		Content:  deref(form.value(formFieldContent)),
		Category: deref(form.value(formFieldCategory)),
		Image:    image,
	})
	if err != nil {
		h.discardUpload(r, image)
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			writeMessage(w, http.StatusNotFound, "user not found")
		case errors.Is(err, services.ErrCategoryNotFound):
			writeMessage(w, http.StatusNotFound, "Category not found")
		default:
			writeErrors(w, r, err)
		}
		return
	}

	writeMessage(w, http.StatusCreated, "post created with "+post.ID.Hex())
}

func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidID)
		return
	}
	identity, _ := identityFromContext(r.Context())

	form, err := parseRequestForm(w, r, formFieldImage, h.maxUploadBytes)
	if err != nil {
		writeFormError(w, r, err)
		return
	}
	image, err := saveUpload(r, h.images, form.file)
	if err != nil {
		writeFormError(w, r, err)
		return
	}

	in := services.UpdatePostInput{
		Title:    form.value(formFieldTitle),
		Content:  form.value(formFieldContent),
		Category: form.value(formFieldCategory),
	}
	if image != "" {
		in.Image = &image
	}

	if _, err := h.postService.Update(r.Context(), identity.UserID, id, in); err != nil {
		h.discardUpload(r, image)
		var input *services.InputError
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			writeMessage(w, http.StatusNotFound, "user not found")
		case errors.Is(err, services.ErrNotAuthor):
			writeMessage(w, http.StatusNotFound, "You can't update this post")
		case errors.As(err, &input):
			writeMessage(w, http.StatusBadRequest, input.Message)
		case errors.Is(err, services.ErrCategoryNotFound):
			writeMessage(w, http.StatusNotFound, "category name not found")
		case errors.Is(err, services.ErrNotModified):
			writeNotModified(w)
		default:
			writeErrors(w, r, err)
		}
		return
	}

	writeMessage(w, http.StatusOK, fmt.Sprintf("post with ID %s was updated", id.Hex()))
}

func (h *PostHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidID)
		return
	}
	identity, _ := identityFromContext(r.Context())

	post, err := h.postService.ToggleLike(r.Context(), identity.UserID, id)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			writeMessage(w, http.StatusNotFound, "user not found")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "Post not found")
		default:
			writeErrors(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, LikedPostResponse{Post: post})
}

func (h *PostHandler) GetTotalLikes(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidID)
		return
	}

	total, err := h.postService.TotalLikes(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "No posts found")
			return
		}
		writeErrors(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TotalLikesResponse{TotalLikes: total})
}

func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidID)
		return
	}
	identity, _ := identityFromContext(r.Context())

	if err := h.postService.Delete(r.Context(), identity.UserID, id); err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			writeMessage(w, http.StatusNotFound, "user not found")
		case errors.Is(err, services.ErrNotAuthor):
			writeMessage(w, http.StatusNotFound, "post not found")
		case errors.Is(err, services.ErrDeleteFailed):
			writeMessage(w, http.StatusExpectationFailed, msgExpectationFailed)
		default:
			writeErrors(w, r, err)
		}
		return
	}

	writeMessage(w, http.StatusOK, fmt.Sprintf("post with ID %s was deleted", id.Hex()))
}

// discardUpload removes an image stored for a request that then failed.
func (h *PostHandler) discardUpload(r *http.Request, url string) {
	if url != "" {
		h.images.RemoveImage(r.Context(), url)
	}
}

type PostListResponse struct {
	Posts []types.PostView `json:"posts"`
}

type PostResponse struct {
	Post types.PostView `json:"post"`
}

type FilteredPostsResponse struct {
	FilteredPosts []types.PostView `json:"filteredPosts"`
}

type PostsCountResponse struct {
	PostsCount int64 `json:"postsCount"`
}

type LikedPostResponse struct {
	Post types.Post `json:"post"`
}

type TotalLikesResponse struct {
	TotalLikes int `json:"totalLikes"`
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
