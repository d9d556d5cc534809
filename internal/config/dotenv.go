// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"

	xglog "github.com/ManuGH/tvgrid/internal/log"
)

// LoadDotEnv imports KEY=VALUE pairs from files into the process
// environment. Variables already set are left alone and missing files are
// skipped.
func LoadDotEnv(files ...string) error {
	logger := xglog.WithComponent("config")
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		err := godotenv.Load(f)
		switch {
		case err == nil:
			logger.Info().Str(xglog.FieldPath, f).Str(xglog.FieldEvent, "config.dotenv_loaded").Msg("loaded environment file")
		case errors.Is(err, fs.ErrNotExist):
		default:
			return err
		}
	}
	return nil
}
