package database

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"blogroll/models"
)

// RunMigrations registers the custom join tables and auto-migrates every model.
func RunMigrations(db *gorm.DB, logger zerolog.Logger) error {
	logger.Info().Msg("running database migrations")

	if err := db.SetupJoinTable(&models.Folder{}, "Blogs", &models.FolderBlog{}); err != nil {
		return fmt.Errorf("setup folder_blog join table: %w", err)
	}

	err := db.AutoMigrate(
		&models.User{},
		&models.Blog{},
		&models.Post{},
		&models.Comment{},
		&models.Folder{},
		&models.FolderBlog{},
		&models.Subscription{},
	)
	if err != nil {
		logger.Error().Err(err).Msg("migrations failed")
		return err
	}

	logger.Info().Msg("migrations completed")
	return nil
}
