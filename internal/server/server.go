package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/quillpress/apiserver/config"
	"github.com/quillpress/apiserver/internal/cache"
	"github.com/quillpress/apiserver/internal/db"
	"github.com/quillpress/apiserver/internal/handlers"
	"github.com/quillpress/apiserver/internal/mq"
	"github.com/quillpress/apiserver/internal/services"
	"github.com/quillpress/apiserver/internal/storage"
	"github.com/quillpress/apiserver/internal/store"
	"github.com/quillpress/apiserver/internal/store/memory"
)

const apiPrefix = "/api/v1"

// Repositories is the persistence layer the services run on.
type Repositories struct {
	Users      services.UserRepository
	Categories services.CategoryRepository
	Posts      interface {
		services.PostRepository
		services.CategoryRenamer
	}
	Blacklist services.BlacklistRepository
	Health    handlers.Pinger
}

// Deps are the collaborators a Server is built from.
type Deps struct {
	Repos  Repositories
	Cache  services.TokenCache
	Images *storage.Storage
	Events *services.Events
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     zerolog.Logger
	closers    []func() error
}

// New connects every backend selected by cfg and constructs the Server.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	var (
		deps    Deps
		closers []func() error
	)
	fail := func(err error) (*Server, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	switch strings.ToLower(cfg.StoreBackend) {
	case config.StoreBackendMemory:
		logger.Warn().Msg("using in-memory store, data is lost on exit")
		deps.Repos = MemoryRepositories(memory.New())
	case config.StoreBackendMongo, "":
		client, err := db.Open(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() error { return client.Disconnect(context.Background()) })

		database := db.Database(client, cfg)
		if err := db.EnsureIndexes(ctx, database); err != nil {
			return fail(err)
		}
		deps.Repos = Repositories{
			Users:      store.NewUserRepository(database),
			Categories: store.NewCategoryRepository(database),
			Posts:      store.NewPostRepository(database),
			Blacklist:  store.NewBlacklistRepository(database),
			Health:     db.Health{Client: client},
		}
	default:
		return fail(fmt.Errorf("unknown store backend %q", cfg.StoreBackend))
	}

	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
		closers = append(closers, rdb.Close)
		deps.Cache = cache.NewTokenCache(rdb)
	}

	images, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fail(fmt.Errorf("storage: %w", err))
	}
	closers = append(closers, images.Close)
	deps.Images = images

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		return fail(fmt.Errorf("mq: %w", err))
	}
	if queue != nil {
		closers = append(closers, queue.Close)
	}
	deps.Events = services.NewEvents(queue)

	srv, err := NewWithDeps(cfg, logger, deps)
	if err != nil {
		return fail(err)
	}
	srv.closers = closers
	return srv, nil
}

// MemoryRepositories exposes an in-memory store as Repositories.
func MemoryRepositories(mem *memory.Store) Repositories {
	return Repositories{
		Users:      mem.Users(),
		Categories: mem.Categories(),
		Posts:      mem.Posts(),
		Blacklist:  mem.Blacklist(),
		Health:     mem,
	}
}

// NewWithDeps constructs a Server around already connected dependencies.
func NewWithDeps(cfg config.Config, logger zerolog.Logger, deps Deps) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if deps.Images == nil {
		return nil, errors.New("upload storage is required")
	}

	repos := deps.Repos
	tokens := services.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	blacklist := services.NewBlacklistService(repos.Blacklist, deps.Cache)
	authService := services.NewAuthService(repos.Users, tokens, blacklist)
	userService := services.NewUserService(repos.Users, deps.Images, deps.Events)
	categoryService := services.NewCategoryService(repos.Categories, repos.Posts, deps.Events)
	postService := services.NewPostService(repos.Posts, repos.Users, repos.Categories, deps.Images, deps.Events)

	authMiddleware := handlers.RequireAuth(authService)
	adminRegistration := !strings.EqualFold(cfg.AdminRegistration, config.AdminRegistrationDisabled)
	maxUpload := cfg.Storage.MaxUpload

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		hlog.NewHandler(logger),
		requestIDLogger,
		hlog.AccessHandler(accessLog),
		handlers.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz(repos.Health))
	router.Route(strings.TrimSuffix(storage.PublicPrefix, "/"), func(r chi.Router) {
		handlers.UploadRouter(r, deps.Images)
	})
	router.Route(apiPrefix, func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authService, userService, adminRegistration)
		})
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, userService, deps.Images, maxUpload, authMiddleware)
		})
		r.Route("/posts", func(r chi.Router) {
			handlers.PostRouter(r, postService, deps.Images, maxUpload, authMiddleware)
		})
		r.Route("/categories", func(r chi.Router) {
			handlers.CategoryRouter(r, categoryService, authMiddleware)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases backend connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	for i := len(s.closers) - 1; i >= 0; i-- {
		if cerr := s.closers[i](); cerr != nil {
			s.logger.Warn().Err(cerr).Msg("close backend")
		}
	}
	return err
}

func requestIDLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("req_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}
