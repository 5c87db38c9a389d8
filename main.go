package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"blogroll/admin"
	"blogroll/auth"
	"blogroll/blog"
	"blogroll/comment"
	"blogroll/common"
	"blogroll/config"
	"blogroll/database"
	"blogroll/folder"
	"blogroll/models"
	"blogroll/post"
	"blogroll/profile"
	"blogroll/site"
	"blogroll/storage"
	"blogroll/subscription"
)

func main() {
	app := &cli.App{
		Name:   "blogroll",
		Usage:  "blog, post and subscription API",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run migrations and start the HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrate,
			},
			{
				Name:  "promote",
				Usage: "grant admin rights to an existing user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Usage: "email of the user to promote", Required: true},
				},
				Action: promote,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bootstrap() (*config.Config, zerolog.Logger, *gorm.DB, error) {
	cfg := config.Load()
	logger := common.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if !cfg.EnvFileLoaded {
		logger.Debug().Msg("no .env file, using process environment")
	}

	db, err := common.ConnectDb(cfg.Database, logger)
	if err != nil {
		return nil, logger, nil, err
	}
	if err := database.RunMigrations(db, logger); err != nil {
		return nil, logger, nil, err
	}
	return cfg, logger, db, nil
}

func migrate(c *cli.Context) error {
	_, logger, _, err := bootstrap()
	if err != nil {
		return err
	}
	logger.Info().Msg("migrations applied")
	return nil
}

func promote(c *cli.Context) error {
	_, logger, db, err := bootstrap()
	if err != nil {
		return err
	}

	email := c.String("email")
	res := db.Model(&models.User{}).Where("email = ?", email).Update("is_admin", true)
	if res.Error != nil {
		return fmt.Errorf("promote %s: %w", email, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no user with email %s", email)
	}
	logger.Info().Str("email", email).Msg("user promoted to admin")
	return nil
}

func serve(c *cli.Context) error {
	cfg, logger, db, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	authModule := auth.NewAuthModule(db, tokens, logger, cfg.AuthRateLimit)
	blogModule := blog.NewBlogModule(db, store, logger)
	postModule := post.NewPostModule(db, store, logger)
	commentModule := comment.NewCommentModule(db, logger)
	profileModule := profile.NewProfileModule(db, store, logger)
	adminModule := admin.NewAdminModule(db, store, logger, blogModule, postModule, commentModule, profileModule)

	router := common.NewEngine(logger)
	api := router.Group("/api/v1")

	authModule.RegisterRoutes(api)
	requireAuth := authModule.RequireAuth
	profileModule.RegisterRoutes(api, requireAuth)
	blogModule.RegisterRoutes(api, requireAuth)
	postModule.RegisterRoutes(api, requireAuth)
	commentModule.RegisterRoutes(api, requireAuth)
	folder.NewFolderModule(db, logger).RegisterRoutes(api, requireAuth)
	subscription.NewSubscriptionModule(db, logger).RegisterRoutes(api, requireAuth)
	adminModule.RegisterRoutes(api, requireAuth)
	site.NewSiteModule(blogModule, store, logger).RegisterRoutes(router, api)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Str("storage", cfg.Storage.Driver).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
