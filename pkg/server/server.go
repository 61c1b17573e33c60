package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/learnmap/learnmap/pkg/auth"
	"github.com/learnmap/learnmap/pkg/binder"
	"github.com/learnmap/learnmap/pkg/chaptergraph"
	"github.com/learnmap/learnmap/pkg/chapters"
	"github.com/learnmap/learnmap/pkg/config"
	"github.com/learnmap/learnmap/pkg/courses"
	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/organizations"
	"github.com/learnmap/learnmap/pkg/roles"
	"github.com/learnmap/learnmap/pkg/testutils"
	"github.com/learnmap/learnmap/pkg/users"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/uptrace/bun"
)

func New(cfg *config.Config, db *bun.DB) (*http.Server, error) {
	e, err := newEcho(cfg, db)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func newEcho(cfg *config.Config, db *bun.DB) (*echo.Echo, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	authService := auth.NewService(db, cfg.JWTSecret)
	authMiddleware := auth.NewMiddleware(authService)
	auth.RegisterRoutes(e, authService, authMiddleware)

	// Every chapter graph mutation in the process goes through this engine so
	// that mutations on the same course are serialized.
	engine := chaptergraph.NewEngine(chaptergraph.NewBunStore(db), chaptergraph.EngineOptions{
		MaxRetries: cfg.GraphMutationMaxRetries,
	})
	authorizer := auth.NewAuthorizer()

	organizationsGroup := e.Group("/organizations")
	organizationsGroup.Use(authMiddleware.Authenticate)
	organizations.RegisterRoutesWithGroup(organizationsGroup, db, authMiddleware)

	usersGroup := e.Group("/users")
	usersGroup.Use(authMiddleware.Authenticate)
	users.RegisterRoutesWithGroup(usersGroup, db, authMiddleware)

	rolesGroup := e.Group("/roles")
	rolesGroup.Use(authMiddleware.Authenticate)
	roles.RegisterRoutesWithGroup(rolesGroup, db, authMiddleware)

	// Public courses are readable anonymously, so course and chapter routes
	// only authenticate optionally and leave the decision to the authorizer.
	coursesGroup := e.Group("/courses")
	coursesGroup.Use(authMiddleware.AuthenticateOptional)
	courses.RegisterRoutesWithGroup(coursesGroup, db, authorizer)

	chaptersGroup := e.Group("/chapters")
	chaptersGroup.Use(authMiddleware.AuthenticateOptional)
	chapters.RegisterRoutes(coursesGroup, chaptersGroup, db, engine, authorizer)

	if cfg.Environment == "test" {
		testutils.RegisterRoutes(e, db)
	}

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	return e, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
