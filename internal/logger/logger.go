// Package logger builds the process-wide zap logger.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
)

// Init constructs the service logger. Production config by default;
// set INKLEDGER_LOG_MODE=development for console output and debug level.
func Init() (*zap.Logger, error) {
	mode := strings.ToLower(os.Getenv("INKLEDGER_LOG_MODE"))
	if mode == "development" || mode == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
