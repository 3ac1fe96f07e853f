package db

import (
	"gorm.io/gorm/logger"
)

// NewLogger maps the app log level onto gorm's logger so SQL noise only
// shows up when debugging.
func NewLogger(level string) logger.Interface {
	switch level {
	case "trace", "debug":
		return logger.Default.LogMode(logger.Info)
	case "warn":
		return logger.Default.LogMode(logger.Warn)
	default:
		return logger.Default.LogMode(logger.Silent)
	}
}
