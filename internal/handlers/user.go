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

const formFieldProfilePicture = "profilePicture"

// UserHandler provides HTTP handlers for users.
type UserHandler struct {
	userService    *services.UserService
	images         ImageStore
	maxUploadBytes int64
}

func NewUserHandler(userService *services.UserService, images ImageStore, maxUploadBytes int64) *UserHandler {
	return &UserHandler{
		userService:    userService,
		images:         images,
		maxUploadBytes: maxUploadBytes,
	}
}

// UserRouter registers user routes on the given router. Updates and deletes
// always target the caller.
func UserRouter(
	r chi.Router,
	userService *services.UserService,
	images ImageStore,
	maxUploadBytes int64,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewUserHandler(userService, images, maxUploadBytes)

	r.Get("/", handler.ListUsers)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Put("/", handler.UpdateUser)
		r.Delete("/", handler.DeleteUser)
		r.Get("/get/count", handler.CountUsers)
		r.Get("/{id}", handler.GetUser)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeErrors(w, r, err)
		return
	}
	if len(users) == 0 {
		writeMessage(w, http.StatusNotFound, "No users")
		return
	}
	writeJSON(w, http.StatusOK, UserListResponse{Users: users})
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidID)
		return
	}

	user, err := h.userService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, fmt.Sprintf("user with ID %s not found", id.Hex()))
			return
		}
		writeErrors(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: user})
}

func (h *UserHandler) CountUsers(w http.ResponseWriter, r *http.Request) {
	count, err := h.userService.Count(r.Context())
	if err != nil {
		writeErrors(w, r, err)
		return
	}
	if count == 0 {
		writeMessage(w, http.StatusNotFound, "No users found")
		return
	}
	writeJSON(w, http.StatusOK, UsersCountResponse{UsersCount: count})
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())

	form, err := parseRequestForm(w, r, formFieldProfilePicture, h.maxUploadBytes)
	if err != nil {
		writeFormError(w, r, err)
		return
	}
	picture, err := saveUpload(r, h.images, form.file)
	if err != nil {
		writeFormError(w, r, err)
		return
	}

	in := services.UpdateUserInput{
		Firstname: form.value("firstname"),
		Surname:   form.value("surname"),
		Username:  form.value("username"),
		Email:     form.value("email"),
		Password:  form.value("password"),
	}
	if picture != "" {
		in.ProfilePicture = &picture
	}

	if _, err := h.userService.Update(r.Context(), identity.UserID, in); err != nil {
		if picture != "" {
			h.images.RemoveImage(r.Context(), picture)
		}
		var input *services.InputError
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			writeMessage(w, http.StatusNotFound, "user not found")
		case errors.As(err, &input):
			writeMessage(w, http.StatusBadRequest, input.Message)
		case errors.Is(err, services.ErrNotModified):
			writeNotModified(w)
		default:
			writeErrors(w, r, err)
		}
		return
	}

	writeMessage(w, http.StatusOK, fmt.Sprintf("user with ID %s was modified", identity.UserID.Hex()))
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())

	if err := h.userService.Delete(r.Context(), identity.UserID); err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			writeMessage(w, http.StatusNotFound, "user not found")
		case errors.Is(err, services.ErrDeleteFailed):
			writeMessage(w, http.StatusExpectationFailed, msgExpectationFailed)
		default:
			writeErrors(w, r, err)
		}
		return
	}

	writeMessage(w, http.StatusOK, fmt.Sprintf("user with ID %s was deleted", identity.UserID.Hex()))
}

type UserListResponse struct {
	Users []types.UserSummary `json:"users"`
}

type UserResponse struct {
	User types.User `json:"user"`
}

type UsersCountResponse struct {
	UsersCount int64 `json:"usersCount"`
}
