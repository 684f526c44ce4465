package datastore

import (
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aquaguard/aquaguard-go/internal/logging"
)

// DefaultSlowQueryThreshold defines the duration after which a query is
// considered slow and logged at warn level.
const DefaultSlowQueryThreshold = 1 * time.Second

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger(debug bool) gormlogger.Interface {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return gormlogger.New(
		slogWriter{logger: logging.ForService("gorm")},
		gormlogger.Config{
			SlowThreshold:             DefaultSlowQueryThreshold,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// slogWriter adapts a slog.Logger to gorm's logger.Writer interface.
type slogWriter struct {
	logger interface{ Info(msg string, args ...any) }
}

func (w slogWriter) Printf(format string, args ...any) {
	w.logger.Info("gorm", "msg", format, "args", args)
}

// performAutoMigration migrates all application tables.
func performAutoMigration(db *gorm.DB, dbType string) error {
	start := time.Now()
	log := logging.ForService("datastore")

	tables := []any{
		&SensorReading{},
		&Alert{},
		&ModelVersion{},
		&Pipeline{},
		&Sensor{},
		&SystemSetting{},
	}

	for _, table := range tables {
		if err := db.AutoMigrate(table); err != nil {
			return dbError(err, "auto_migrate")
		}
	}

	log.Debug("Database migration completed",
		"db_type", dbType,
		"tables", len(tables),
		"duration", time.Since(start))
	return nil
}
