package migrations

import (
	"goal_planner/internal/database"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RunMigrations creates the schema. With reset it drops every table first,
// discarding all stored sessions.
func RunMigrations(db *gorm.DB, reset bool, log *zap.Logger) error {
	log.Info("running database migrations", zap.Bool("reset", reset))

	if reset {
		log.Info("dropping existing tables")
		if err := db.Migrator().DropTable(database.Models()...); err != nil {
			log.Warn("error dropping tables", zap.Error(err))
		}
	}

	if err := database.AutoMigrate(db); err != nil {
		return err
	}

	log.Info("database migrations completed")
	return nil
}
