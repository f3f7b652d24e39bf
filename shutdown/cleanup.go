package shutdown

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"promptbatch/core"
	"promptbatch/logging"

	"go.uber.org/zap"
)

// PartialSuffix marks image files still being written.
const PartialSuffix = ".part"

// CleanupPartialOutputs returns a shutdown function that removes leftover
// "*.part" files under outputDir, left behind when a write was interrupted.
// Failures are logged and never block shutdown.
func CleanupPartialOutputs(logger *logging.Logger, outputDir string) core.ShutdownFunc {
	return func(ctx context.Context) error {
		removed, failed := 0, 0
		err := filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), PartialSuffix) {
				return nil
			}
			if err := os.Remove(path); err != nil {
				failed++
				logger.Warn("Failed to remove partial output", zap.String("file", path), zap.Error(err))
				return nil
			}
			removed++
			return nil
		})
		switch {
		case os.IsNotExist(err):
			return nil
		case err != nil:
			logger.Warn("Partial output cleanup stopped early", zap.String("directory", outputDir), zap.Error(err))
		}
		if removed > 0 || failed > 0 {
			logger.Info("Partial output cleanup complete", zap.Int("removed", removed), zap.Int("failed", failed))
		}
		return nil
	}
}

// Close adapts an io.Closer to a shutdown function.
func Close(c io.Closer) core.ShutdownFunc {
	return func(context.Context) error {
		return c.Close()
	}
}

// SyncLogger flushes logger, ignoring the EINVAL that stderr returns on
// Linux.
func SyncLogger(logger *logging.Logger) core.ShutdownFunc {
	return func(context.Context) error {
		if err := logger.Sync(); err != nil && !strings.Contains(err.Error(), "invalid argument") &&
			!strings.Contains(err.Error(), "inappropriate ioctl") {
			return err
		}
		return nil
	}
}
