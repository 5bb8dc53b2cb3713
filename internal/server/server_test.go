package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/quillpress/apiserver/config"
	"github.com/quillpress/apiserver/internal/storage"
	"github.com/quillpress/apiserver/internal/store/memory"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nnot really a png")

type harness struct {
	t       *testing.T
	handler http.Handler
	mem     *memory.Store
	uploads *storage.LocalClient
}

func newHarness(t *testing.T, opts ...func(*config.Config)) *harness {
	t.Helper()

	cfg := config.Config{
		JWTSecret:         "test-secret",
		TokenTTL:          time.Hour,
		AdminRegistration: config.AdminRegistrationOpen,
		CORSOrigins:       []string{"*"},
		Storage:           config.StorageConfig{MaxUpload: 1 << 20},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	uploads, err := storage.NewLocalClient(t.TempDir())
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}
	mem := memory.New()
	srv, err := NewWithDeps(cfg, zerolog.Nop(), Deps{
		Repos:  MemoryRepositories(mem),
		Images: storage.NewStorage(uploads),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &harness{t: t, handler: srv.Router(), mem: mem, uploads: uploads}
}

type response struct {
	status int
	body   []byte
}

func (r response) json(t *testing.T) map[string]any {
	t.Helper()
	out := make(map[string]any)
	if err := json.Unmarshal(r.body, &out); err != nil {
		t.Fatalf("decode %q: %v", r.body, err)
	}
	return out
}

func (r response) message(t *testing.T) string {
	t.Helper()
	msg, _ := r.json(t)["message"].(string)
	return msg
}

func (h *harness) do(method, path, token string, body io.Reader, contentType string) response {
	h.t.Helper()

	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return response{status: rec.Code, body: rec.Body.Bytes()}
}

func (h *harness) doJSON(method, path, token string, payload any) response {
	h.t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	}
	return h.do(method, path, token, body, "application/json")
}

func (h *harness) doForm(method, path, token string, fields map[string]string, fileField, filename, fileType string) response {
	h.t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		_ = writer.WriteField(key, value)
	}
	if fileField != "" {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+fileField+`"; filename="`+filename+`"`)
		header.Set("Content-Type", fileType)
		part, err := writer.CreatePart(header)
		if err != nil {
			h.t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write(pngBytes)
	}
	if err := writer.Close(); err != nil {
		h.t.Fatalf("close form: %v", err)
	}
	return h.do(method, path, token, &body, writer.FormDataContentType())
}

func (h *harness) register(username, email, password string, admin bool) string {
	h.t.Helper()

	path := "/api/v1/auth/register/user"
	payload := map[string]any{"username": username, "email": email, "password": password}
	if admin {
		path = "/api/v1/auth/register/admin"
		payload["isAdmin"] = true
	}
	resp := h.doJSON(http.MethodPost, path, "", payload)
	if resp.status != http.StatusCreated {
		h.t.Fatalf("register %s: status %d: %s", username, resp.status, resp.body)
	}
	_, id, _ := strings.Cut(resp.message(h.t), "ID: ")
	return id
}

func (h *harness) login(identity map[string]string) string {
	h.t.Helper()

	resp := h.doJSON(http.MethodPost, "/api/v1/auth/login", "", identity)
	if resp.status != http.StatusOK {
		h.t.Fatalf("login: status %d: %s", resp.status, resp.body)
	}
	token, _ := resp.json(h.t)["accessToken"].(string)
	if token == "" {
		h.t.Fatalf("login: missing accessToken in %s", resp.body)
	}
	return token
}

func (h *harness) user(name string) string {
	h.t.Helper()
	h.register(name, name+"@example.com", "secret1", false)
	return h.login(map[string]string{"username": name, "password": "secret1"})
}

func (h *harness) admin(name string) string {
	h.t.Helper()
	h.register(name, name+"@example.com", "secret1", true)
	return h.login(map[string]string{"username": name, "password": "secret1"})
}

func (h *harness) category(adminToken, name string) {
	h.t.Helper()
	resp := h.doJSON(http.MethodPost, "/api/v1/categories", adminToken, map[string]string{"name": name})
	if resp.status != http.StatusCreated {
		h.t.Fatalf("create category: status %d: %s", resp.status, resp.body)
	}
}

func (h *harness) post(token, title, category string) string {
	h.t.Helper()
	resp := h.doForm(http.MethodPost, "/api/v1/posts", token, map[string]string{
		"title":    title,
		"content":  "body of " + title,
		"category": category,
	}, "image", "cover photo.png", "image/png")
	if resp.status != http.StatusCreated {
		h.t.Fatalf("create post: status %d: %s", resp.status, resp.body)
	}
	return strings.TrimPrefix(resp.message(h.t), "post created with ")
}

func TestRegisterStoresHashedPassword(t *testing.T) {
	h := newHarness(t)
	h.register("  Alice Smith ", "Alice@Example.com ", "secret1", false)

	user, err := h.mem.Users().GetByUsername(t.Context(), "alicesmith")
	if err != nil {
		t.Fatalf("lookup normalized username: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("email = %q", user.Email)
	}
	if user.PasswordHash == "secret1" {
		t.Fatalf("password stored in plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")); err != nil {
		t.Fatalf("hash does not match password: %v", err)
	}
	if user.IsAdmin {
		t.Fatalf("user registration must not grant admin")
	}
}

func TestLongPasswords(t *testing.T) {
	h := newHarness(t)
	password := strings.Repeat("a", 80)
	h.register("bob", "bob@example.com", password, false)

	h.login(map[string]string{"email": "bob@example.com", "password": password})

	// Same first 72 bytes, different tail.
	resp := h.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "bob@example.com", "password": strings.Repeat("a", 72) + "bbbbbbbb",
	})
	if resp.status != http.StatusUnauthorized {
		t.Fatalf("login with different long password: %d %s", resp.status, resp.body)
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)
	h.register("alice", "alice@example.com", "secret1", false)

	tests := []struct {
		name    string
		path    string
		payload any
		status  int
		want    string
	}{
		{
			name:    "empty body",
			path:    "/api/v1/auth/register/user",
			payload: map[string]string{},
			status:  http.StatusBadRequest,
			want:    `{"message":"Please provide username, email and password"}`,
		},
		{
			name:    "duplicate email",
			path:    "/api/v1/auth/register/user",
			payload: map[string]string{"username": "bob", "email": "ALICE@example.com", "password": "secret1"},
			status:  http.StatusBadRequest,
			want:    `{"errors":{"email":"email already exists"}}`,
		},
		{
			name:    "duplicate username",
			path:    "/api/v1/auth/register/user",
			payload: map[string]string{"username": "Ali ce", "email": "other@example.com", "password": "secret1"},
			status:  http.StatusBadRequest,
			want:    `{"errors":{"username":"username already exists"}}`,
		},
		{
			name:    "short password",
			path:    "/api/v1/auth/register/user",
			payload: map[string]string{"username": "carol", "email": "carol@example.com", "password": " abc  "},
			status:  http.StatusBadRequest,
			want:    `"password"`,
		},
		{
			name:    "bad email",
			path:    "/api/v1/auth/register/user",
			payload: map[string]string{"username": "dave", "email": "not-an-email", "password": "secret1"},
			status:  http.StatusBadRequest,
			want:    `"email"`,
		},
		{
			name:    "admin missing fields",
			path:    "/api/v1/auth/register/admin",
			payload: map[string]any{"username": "erin", "isAdmin": true},
			status:  http.StatusBadRequest,
			want:    `{"message":"Please provide username, email, admin status and password"}`,
		},
		{
			name:    "admin flag false",
			path:    "/api/v1/auth/register/admin",
			payload: map[string]any{"username": "erin", "email": "erin@example.com", "password": "secret1", "isAdmin": false},
			status:  http.StatusBadRequest,
			want:    `{"message":"Please set admin status to true"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.doJSON(http.MethodPost, tt.path, "", tt.payload)
			if resp.status != tt.status {
				t.Fatalf("status = %d, want %d: %s", resp.status, tt.status, resp.body)
			}
			if !strings.Contains(string(resp.body), tt.want) {
				t.Fatalf("body = %s, want %s", resp.body, tt.want)
			}
		})
	}
}

func TestAdminRegistrationDisabled(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.AdminRegistration = config.AdminRegistrationDisabled
	})

	resp := h.doJSON(http.MethodPost, "/api/v1/auth/register/admin", "", map[string]any{
		"username": "root", "email": "root@example.com", "password": "secret1", "isAdmin": true,
	})
	if resp.status != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.status)
	}
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	h.register("alice", "alice@example.com", "secret1", false)

	h.login(map[string]string{"email": " ALICE@example.com", "password": "secret1"})
	h.login(map[string]string{"username": "A lice", "password": "secret1"})

	wrongPassword := h.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice", "password": "nope123"})
	unknownUser := h.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "mallory", "password": "secret1"})
	for _, resp := range []response{wrongPassword, unknownUser} {
		if resp.status != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", resp.status)
		}
	}
	if !bytes.Equal(wrongPassword.body, unknownUser.body) {
		t.Fatalf("responses differ: %s vs %s", wrongPassword.body, unknownUser.body)
	}

	missing := h.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice"})
	if missing.status != http.StatusBadRequest || missing.message(t) != "Please provide username/email and password" {
		t.Fatalf("missing password: %d %s", missing.status, missing.body)
	}

	// Email wins when both identifiers are given.
	resp := h.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "email": "nobody@example.com", "password": "secret1",
	})
	if resp.status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.status)
	}
}

func TestAuthMiddleware(t *testing.T) {
	h := newHarness(t)
	token := h.user("alice")

	if resp := h.do(http.MethodGet, "/api/v1/posts/get/count", "", nil, ""); resp.status != http.StatusUnauthorized || resp.message(t) != "Unauthorized" {
		t.Fatalf("no header: %d %s", resp.status, resp.body)
	}
	if resp := h.do(http.MethodGet, "/api/v1/posts/get/count", "garbage", nil, ""); resp.status != http.StatusForbidden || resp.message(t) != "Token is not valid!" {
		t.Fatalf("bad token: %d %s", resp.status, resp.body)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts/get/count", nil)
	req.Header.Set("Authorization", "Bearer")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("scheme without token: %d", rec.Code)
	}

	forged := newHarness(t, func(cfg *config.Config) { cfg.JWTSecret = "other-secret" }).user("alice")
	if resp := h.do(http.MethodGet, "/api/v1/posts/get/count", forged, nil, ""); resp.status != http.StatusForbidden {
		t.Fatalf("forged token: %d", resp.status)
	}

	if resp := h.do(http.MethodGet, "/api/v1/posts/get/count", token, nil, ""); resp.status != http.StatusNotFound {
		t.Fatalf("valid token on empty store: %d %s", resp.status, resp.body)
	}

	if resp := h.doJSON(http.MethodPost, "/api/v1/categories", token, map[string]string{"name": "go"}); resp.status != http.StatusForbidden || resp.message(t) != "Unauthorized" {
		t.Fatalf("non-admin category create: %d %s", resp.status, resp.body)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	h := newHarness(t)
	token := h.user("alice")

	resp := h.do(http.MethodGet, "/api/v1/auth/logout", token, nil, "")
	if resp.status != http.StatusOK || resp.message(t) != "Logout successful" {
		t.Fatalf("logout: %d %s", resp.status, resp.body)
	}

	resp = h.do(http.MethodGet, "/api/v1/users/get/count", token, nil, "")
	if resp.status != http.StatusUnauthorized || resp.message(t) != "Unauthorized" {
		t.Fatalf("revoked token: %d %s", resp.status, resp.body)
	}

	if resp := h.do(http.MethodGet, "/api/v1/auth/logout", "", nil, ""); resp.status != http.StatusUnauthorized {
		t.Fatalf("logout without header: %d", resp.status)
	}
}

func TestLogoutRevokesUnverifiedToken(t *testing.T) {
	h := newHarness(t)

	resp := h.do(http.MethodGet, "/api/v1/auth/logout", "not.a.jwt", nil, "")
	if resp.status != http.StatusOK || resp.message(t) != "Logout successful" {
		t.Fatalf("logout with malformed token: %d %s", resp.status, resp.body)
	}
	revoked, err := h.mem.Blacklist().Exists(t.Context(), "not.a.jwt")
	if err != nil || !revoked {
		t.Fatalf("malformed token revoked = %v, %v", revoked, err)
	}

	forged := newHarness(t, func(cfg *config.Config) { cfg.JWTSecret = "other-secret" }).user("alice")
	if resp := h.do(http.MethodGet, "/api/v1/auth/logout", forged, nil, ""); resp.status != http.StatusOK {
		t.Fatalf("logout with forged token: %d %s", resp.status, resp.body)
	}
	if revoked, _ := h.mem.Blacklist().Exists(t.Context(), forged); !revoked {
		t.Fatal("forged token not revoked")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-bearer logout: %d", rec.Code)
	}
}

func TestCategoryLifecycle(t *testing.T) {
	h := newHarness(t)
	admin := h.admin("root")
	user := h.user("alice")

	if resp := h.do(http.MethodGet, "/api/v1/categories", user, nil, ""); resp.status != http.StatusNotFound || resp.message(t) != "No categories found" {
		t.Fatalf("empty list: %d %s", resp.status, resp.body)
	}
	if resp := h.doJSON(http.MethodPost, "/api/v1/categories", admin, map[string]string{}); resp.message(t) != "Please provide a category name" {
		t.Fatalf("missing name: %s", resp.body)
	}

	h.category(admin, " Tech News ")
	resp := h.doJSON(http.MethodPost, "/api/v1/categories", admin, map[string]string{"name": "TECH NEWS"})
	if resp.status != http.StatusBadRequest || !strings.Contains(string(resp.body), `"name":"name already exists"`) {
		t.Fatalf("duplicate: %d %s", resp.status, resp.body)
	}

	resp = h.do(http.MethodGet, "/api/v1/categories", user, nil, "")
	var list struct {
		Categories []struct {
			ID   string `json:"_id"`
			Name string `json:"name"`
		} `json:"categories"`
	}
	if err := json.Unmarshal(resp.body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Categories) != 1 || list.Categories[0].Name != "tech-news" {
		t.Fatalf("categories = %+v", list.Categories)
	}
	id := list.Categories[0].ID

	if resp := h.do(http.MethodGet, "/api/v1/categories/"+id, user, nil, ""); resp.status != http.StatusForbidden {
		t.Fatalf("non-admin get: %d", resp.status)
	}
	if resp := h.do(http.MethodGet, "/api/v1/categories/nope", admin, nil, ""); resp.status != http.StatusBadRequest || resp.message(t) != "Invalid ID" {
		t.Fatalf("invalid id: %d %s", resp.status, resp.body)
	}
	missing := "0123456789abcdef01234567"
	if resp := h.do(http.MethodGet, "/api/v1/categories/"+missing, admin, nil, ""); resp.status != http.StatusNotFound || resp.message(t) != "category with ID "+missing+" not found" {
		t.Fatalf("missing: %d %s", resp.status, resp.body)
	}

	if resp := h.doJSON(http.MethodPut, "/api/v1/categories/"+id, admin, map[string]string{"name": "tech news"}); resp.status != http.StatusNotModified {
		t.Fatalf("same name: %d", resp.status)
	}

	h.category(admin, "golang")
	if resp := h.doJSON(http.MethodPut, "/api/v1/categories/"+id, admin, map[string]string{"name": "GoLang"}); resp.message(t) != "category name already exists, choose a different name" {
		t.Fatalf("taken name: %d %s", resp.status, resp.body)
	}

	postID := h.post(user, "hello", "tech news")
	if resp := h.doJSON(http.MethodPut, "/api/v1/categories/"+id, admin, map[string]string{"name": "World News"}); resp.status != http.StatusOK {
		t.Fatalf("rename: %d %s", resp.status, resp.body)
	}
	resp = h.do(http.MethodGet, "/api/v1/posts/"+postID, user, nil, "")
	if !strings.Contains(string(resp.body), `"category":"world-news"`) {
		t.Fatalf("post not refiled after rename: %s", resp.body)
	}

	if resp := h.do(http.MethodDelete, "/api/v1/categories/"+id, admin, nil, ""); resp.status != http.StatusOK || resp.message(t) != "category with ID "+id+" was deleted" {
		t.Fatalf("delete: %d %s", resp.status, resp.body)
	}
	if resp := h.do(http.MethodDelete, "/api/v1/categories/"+id, admin, nil, ""); resp.status != http.StatusNotFound {
		t.Fatalf("second delete: %d", resp.status)
	}
}

func TestTechNewsScenario(t *testing.T) {
	h := newHarness(t)
	admin := h.admin("editor")
	h.category(admin, "Tech News")

	h.post(admin, "Go 2 released", "tech news")

	resp := h.do(http.MethodGet, "/api/v1/posts/get/categories?category=Tech%20News", "", nil, "")
	if resp.status != http.StatusOK {
		t.Fatalf("filter: %d %s", resp.status, resp.body)
	}
	var filtered struct {
		FilteredPosts []struct {
			Title    string `json:"title"`
			Category string `json:"category"`
			Author   struct {
				Username string `json:"username"`
			} `json:"author"`
		} `json:"filteredPosts"`
	}
	if err := json.Unmarshal(resp.body, &filtered); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(filtered.FilteredPosts) != 1 {
		t.Fatalf("filteredPosts = %+v", filtered.FilteredPosts)
	}
	got := filtered.FilteredPosts[0]
	if got.Category != "tech-news" || got.Author.Username != "editor" {
		t.Fatalf("post = %+v", got)
	}

	resp = h.do(http.MethodGet, "/api/v1/posts/get/categories?category=sports", "", nil, "")
	if resp.status != http.StatusNotFound || resp.message(t) != "post with category sports not found" {
		t.Fatalf("empty filter: %d %s", resp.status, resp.body)
	}

	h.category(admin, "go")
	h.post(admin, "Generics", "go")
	for _, path := range []string{"/api/v1/posts/get/categories", "/api/v1/posts/get/categories?category=%20"} {
		resp = h.do(http.MethodGet, path, "", nil, "")
		filtered.FilteredPosts = nil
		if err := json.Unmarshal(resp.body, &filtered); err != nil || resp.status != http.StatusOK || len(filtered.FilteredPosts) != 2 {
			t.Fatalf("%s: %d %s", path, resp.status, resp.body)
		}
	}
}

func TestCreatePost(t *testing.T) {
	h := newHarness(t)
	admin := h.admin("root")
	h.category(admin, "go")
	user := h.user("alice")

	resp := h.doForm(http.MethodPost, "/api/v1/posts", user, map[string]string{
		"title": "t", "content": "c", "category": "rust",
	}, "image", "a.png", "image/png")
	if resp.status != http.StatusNotFound || resp.message(t) != "Category not found" {
		t.Fatalf("unknown category: %d %s", resp.status, resp.body)
	}
	if entries := h.uploadCount(); entries != 0 {
		t.Fatalf("upload of failed request kept: %d files", entries)
	}

	resp = h.doForm(http.MethodPost, "/api/v1/posts", user, map[string]string{
		"title": "t", "content": "c", "category": "go",
	}, "image", "a.gif", "image/gif")
	if resp.status != http.StatusBadRequest || !strings.Contains(string(resp.body), `"image":"Invalid image type"`) {
		t.Fatalf("bad image type: %d %s", resp.status, resp.body)
	}

	resp = h.doJSON(http.MethodPost, "/api/v1/posts", user, map[string]string{"title": "t"})
	if resp.status != http.StatusBadRequest {
		t.Fatalf("missing fields: %d", resp.status)
	}
	errs, _ := resp.json(t)["errors"].(map[string]any)
	for _, field := range []string{"content", "category", "image"} {
		if _, ok := errs[field]; !ok {
			t.Fatalf("missing %s error in %s", field, resp.body)
		}
	}

	id := h.post(user, "My first post", "go")
	resp = h.do(http.MethodGet, "/api/v1/posts/"+id, user, nil, "")
	var got struct {
		Post struct {
			Image string `json:"image"`
		} `json:"post"`
	}
	if err := json.Unmarshal(resp.body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(got.Post.Image, "http://example.com/public/uploads/cover-photo.png-") || !strings.HasSuffix(got.Post.Image, ".png") {
		t.Fatalf("image url = %q", got.Post.Image)
	}

	path := strings.TrimPrefix(got.Post.Image, "http://example.com")
	served := h.do(http.MethodGet, path, "", nil, "")
	if served.status != http.StatusOK || !bytes.Equal(served.body, pngBytes) {
		t.Fatalf("serve upload: %d", served.status)
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Storage.MaxUpload = 64 })
	user := h.user("alice")

	resp := h.doJSON(http.MethodPost, "/api/v1/posts", user, map[string]string{
		"title": "t", "content": strings.Repeat("x", 200), "category": "go",
	})
	if resp.status != http.StatusRequestEntityTooLarge || !strings.Contains(resp.message(t), "64 bytes") {
		t.Fatalf("oversized body: %d %s", resp.status, resp.body)
	}
}

func TestMalformedMultipartRejected(t *testing.T) {
	h := newHarness(t)
	user := h.user("alice")

	tests := []struct {
		name, method, path, contentType, body string
	}{
		{"missing boundary", http.MethodPut, "/api/v1/users", "multipart/form-data", "x"},
		{"truncated part", http.MethodPost, "/api/v1/posts", "multipart/form-data; boundary=xyz", "--xyz\r\nContent-Disposition: form-data; name=\"title\"\r\n\r\nhel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(tt.method, tt.path, user, strings.NewReader(tt.body), tt.contentType)
			if resp.status != http.StatusBadRequest || !strings.Contains(string(resp.body), `"form":"Invalid multipart form"`) {
				t.Fatalf("status %d: %s", resp.status, resp.body)
			}
		})
	}
}

func TestPostReads(t *testing.T) {
	h := newHarness(t)
	admin := h.admin("root")
	h.category(admin, "go")

	if resp := h.do(http.MethodGet, "/api/v1/posts", "", nil, ""); resp.status != http.StatusNotFound || resp.message(t) != "No posts found" {
		t.Fatalf("empty: %d %s", resp.status, resp.body)
	}

	first := h.post(admin, "first", "go")
	second := h.post(admin, "second", "go")

	resp := h.do(http.MethodGet, "/api/v1/posts", "", nil, "")
	var list struct {
		Posts []struct {
			ID string `json:"_id"`
		} `json:"posts"`
	}
	if err := json.Unmarshal(resp.body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Posts) != 2 || list.Posts[0].ID != second || list.Posts[1].ID != first {
		t.Fatalf("want newest first, got %+v", list.Posts)
	}

	if resp := h.do(http.MethodGet, "/api/v1/posts/"+first, "", nil, ""); resp.status != http.StatusUnauthorized {
		t.Fatalf("get by id without auth: %d", resp.status)
	}
	if resp := h.do(http.MethodGet, "/api/v1/posts/xyz", admin, nil, ""); resp.status != http.StatusBadRequest || resp.message(t) != "Invalid ID" {
		t.Fatalf("invalid id: %d %s", resp.status, resp.body)
	}
	if resp := h.do(http.MethodGet, "/api/v1/posts/0123456789abcdef01234567", admin, nil, ""); resp.message(t) != "No post found" {
		t.Fatalf("missing: %s", resp.body)
	}
	if resp := h.do(http.MethodGet, "/api/v1/posts/get/count", admin, nil, ""); !strings.Contains(string(resp.body), `"postsCount":2`) {
		t.Fatalf("count: %s", resp.body)
	}
}

func TestToggleLike(t *testing.T) {
	h := newHarness(t)
	admin := h.admin("root")
	h.category(admin, "go")
	id := h.post(admin, "likeable", "go")
	user := h.user("alice")

	like := func() []any {
		t.Helper()
		resp := h.do(http.MethodPut, "/api/v1/posts/toggle/likes/"+id, user, nil, "")
		if resp.status != http.StatusOK {
			t.Fatalf("toggle: %d %s", resp.status, resp.body)
		}
		post, _ := resp.json(t)["post"].(map[string]any)
		likes, _ := post["likes"].([]any)
		return likes
	}

	if likes := like(); len(likes) != 1 {
		t.Fatalf("after first toggle likes = %v", likes)
	}
	if resp := h.do(http.MethodGet, "/api/v1/posts/get/likes/"+id, "", nil, ""); !strings.Contains(string(resp.body), `"totalLikes":1`) {
		t.Fatalf("total likes: %s", resp.body)
	}
	if likes := like(); len(likes) != 0 {
		t.Fatalf("after second toggle likes = %v", likes)
	}

	resp := h.do(http.MethodPut, "/api/v1/posts/toggle/likes/bad", user, nil, "")
	if resp.status != http.StatusBadRequest || !strings.Contains(string(resp.body), `"error":"Invalid ID"`) {
		t.Fatalf("invalid id: %d %s", resp.status, resp.body)
	}
	resp = h.do(http.MethodPut, "/api/v1/posts/toggle/likes/0123456789abcdef01234567", user, nil, "")
	if resp.status != http.StatusNotFound || !strings.Contains(string(resp.body), `"error":"Post not found"`) {
		t.Fatalf("missing post: %d %s", resp.status, resp.body)
	}
	if resp := h.do(http.MethodGet, "/api/v1/posts/get/likes/0123456789abcdef01234567", "", nil, ""); resp.message(t) != "No posts found" {
		t.Fatalf("likes of missing post: %s", resp.body)
	}
}

func TestPostOwnership(t *testing.T) {
	h := newHarness(t)
	admin := h.admin("root")
	h.category(admin, "go")
	h.category(admin, "rust")
	author := h.user("alice")
	other := h.user("bob")
	id := h.post(author, "mine", "go")

	resp := h.doJSON(http.MethodPut, "/api/v1/posts/"+id, other, map[string]string{"title": "stolen"})
	if resp.status != http.StatusNotFound || resp.message(t) != "You can't update this post" {
		t.Fatalf("non-author update: %d %s", resp.status, resp.body)
	}
	resp = h.do(http.MethodDelete, "/api/v1/posts/"+id, other, nil, "")
	if resp.status != http.StatusNotFound || resp.message(t) != "post not found" {
		t.Fatalf("non-author delete: %d %s", resp.status, resp.body)
	}

	resp = h.doJSON(http.MethodPut, "/api/v1/posts/"+id, author, map[string]string{"title": strings.Repeat("x", 101)})
	if resp.status != http.StatusBadRequest || resp.message(t) != "title field must not exceed 100 characters" {
		t.Fatalf("long title: %d %s", resp.status, resp.body)
	}
	resp = h.doJSON(http.MethodPut, "/api/v1/posts/"+id, author, map[string]string{"category": "zig"})
	if resp.status != http.StatusNotFound || resp.message(t) != "category name not found" {
		t.Fatalf("unknown category: %d %s", resp.status, resp.body)
	}
	if resp := h.doJSON(http.MethodPut, "/api/v1/posts/"+id, author, map[string]string{}); resp.status != http.StatusNotModified {
		t.Fatalf("empty update: %d", resp.status)
	}

	resp = h.doJSON(http.MethodPut, "/api/v1/posts/"+id, author, map[string]string{"title": "renamed", "category": "Rust"})
	if resp.status != http.StatusOK || resp.message(t) != "post with ID "+id+" was updated" {
		t.Fatalf("update: %d %s", resp.status, resp.body)
	}
	resp = h.do(http.MethodGet, "/api/v1/posts/"+id, author, nil, "")
	body := string(resp.body)
	if !strings.Contains(body, `"title":"renamed"`) || !strings.Contains(body, `"category":"rust"`) || !strings.Contains(body, `"content":"body of mine"`) {
		t.Fatalf("after update: %s", body)
	}

	resp = h.doForm(http.MethodPut, "/api/v1/posts/"+id, author, nil, "image", "new.png", "image/png")
	if resp.status != http.StatusOK {
		t.Fatalf("image update: %d %s", resp.status, resp.body)
	}
	if n := h.uploadCount(); n != 1 {
		t.Fatalf("replaced image kept: %d files", n)
	}

	resp = h.do(http.MethodDelete, "/api/v1/posts/"+id, author, nil, "")
	if resp.status != http.StatusOK || resp.message(t) != "post with ID "+id+" was deleted" {
		t.Fatalf("delete: %d %s", resp.status, resp.body)
	}
	if n := h.uploadCount(); n != 0 {
		t.Fatalf("deleted post image kept: %d files", n)
	}
}

func TestUsers(t *testing.T) {
	h := newHarness(t)

	if resp := h.do(http.MethodGet, "/api/v1/users", "", nil, ""); resp.status != http.StatusNotFound || resp.message(t) != "No users" {
		t.Fatalf("empty: %d %s", resp.status, resp.body)
	}

	aliceID := h.register("alice", "alice@example.com", "secret1", false)
	alice := h.login(map[string]string{"username": "alice", "password": "secret1"})
	h.register("bob", "bob@example.com", "secret1", false)

	resp := h.do(http.MethodGet, "/api/v1/users", "", nil, "")
	if resp.status != http.StatusOK {
		t.Fatalf("list: %d", resp.status)
	}
	for _, hidden := range []string{"password", "firstname", "surname", "updatedAt"} {
		if strings.Contains(string(resp.body), `"`+hidden+`"`) {
			t.Fatalf("list exposes %s: %s", hidden, resp.body)
		}
	}

	resp = h.do(http.MethodGet, "/api/v1/users/"+aliceID, alice, nil, "")
	if resp.status != http.StatusOK || strings.Contains(string(resp.body), "password") {
		t.Fatalf("get: %d %s", resp.status, resp.body)
	}
	if resp := h.do(http.MethodGet, "/api/v1/users/get/count", alice, nil, ""); !strings.Contains(string(resp.body), `"usersCount":2`) {
		t.Fatalf("count: %s", resp.body)
	}

	updates := []struct {
		payload map[string]string
		want    string
	}{
		{map[string]string{"firstname": strings.Repeat("a", 33)}, "firstname and surname fields must not exceed 32 characters"},
		{map[string]string{"username": strings.Repeat("a", 21)}, "username field must not exceed 20 characters"},
		{map[string]string{"username": "B O B"}, "username already exists, choose a different username"},
		{map[string]string{"email": "nope"}, "Invalid email address"},
		{map[string]string{"email": "BOB@example.com"}, "email already exists, choose a different email"},
		{map[string]string{"password": "  abc "}, "enter at least 6 characters for the password"},
	}
	for _, tt := range updates {
		resp := h.doJSON(http.MethodPut, "/api/v1/users", alice, tt.payload)
		if resp.status != http.StatusBadRequest || resp.message(t) != tt.want {
			t.Fatalf("update %v: %d %s", tt.payload, resp.status, resp.body)
		}
	}

	if resp := h.doJSON(http.MethodPut, "/api/v1/users", alice, map[string]string{}); resp.status != http.StatusNotModified {
		t.Fatalf("empty update: %d", resp.status)
	}
	// Keeping one's own username is not a conflict.
	resp = h.doJSON(http.MethodPut, "/api/v1/users", alice, map[string]string{"username": "alice", "firstname": "Alice", "password": "newsecret"})
	if resp.status != http.StatusOK || resp.message(t) != "user with ID "+aliceID+" was modified" {
		t.Fatalf("update: %d %s", resp.status, resp.body)
	}
	h.login(map[string]string{"username": "alice", "password": "newsecret"})

	resp = h.doForm(http.MethodPut, "/api/v1/users", alice, nil, "profilePicture", "me.jpg", "image/jpeg")
	if resp.status != http.StatusOK {
		t.Fatalf("picture: %d %s", resp.status, resp.body)
	}
	if n := h.uploadCount(); n != 1 {
		t.Fatalf("uploads = %d", n)
	}

	resp = h.do(http.MethodDelete, "/api/v1/users", alice, nil, "")
	if resp.status != http.StatusOK || resp.message(t) != "user with ID "+aliceID+" was deleted" {
		t.Fatalf("delete: %d %s", resp.status, resp.body)
	}
	if n := h.uploadCount(); n != 0 {
		t.Fatalf("profile picture kept after delete: %d", n)
	}
	if resp := h.do(http.MethodDelete, "/api/v1/users", alice, nil, ""); resp.status != http.StatusNotFound {
		t.Fatalf("second delete: %d", resp.status)
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp := h.do(http.MethodGet, "/healthz", "", nil, "")
	if resp.status != http.StatusOK || !strings.Contains(string(resp.body), `"status":"ok"`) {
		t.Fatalf("healthz: %d %s", resp.status, resp.body)
	}
}

func TestUnknownUploadIsNotFound(t *testing.T) {
	h := newHarness(t)
	if resp := h.do(http.MethodGet, "/public/uploads/missing.png", "", nil, ""); resp.status != http.StatusNotFound {
		t.Fatalf("status = %d", resp.status)
	}
}

func TestNewWithDepsRequiresSecret(t *testing.T) {
	uploads, err := storage.NewLocalClient(t.TempDir())
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}
	_, err = NewWithDeps(config.Config{}, zerolog.Nop(), Deps{
		Repos:  MemoryRepositories(memory.New()),
		Images: storage.NewStorage(uploads),
	})
	if err == nil {
		t.Fatalf("expected error without JWT secret")
	}
}

func (h *harness) uploadCount() int {
	h.t.Helper()
	entries, err := os.ReadDir(h.uploads.Bucket())
	if err != nil {
		h.t.Fatalf("read uploads: %v", err)
	}
	return len(entries)
}
