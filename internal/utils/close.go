package utils

import (
	"io"

	"github.com/MrSnakeDoc/factsync/internal/logger"
)

// MustClose closes c and logs any error under the given name.
func MustClose(c io.Closer, name string, log logger.Logger) {
	if err := c.Close(); err != nil {
		log.Warn("failed to close", logger.String("resource", name), logger.Error(err))
	}
}

// DrainAndClose discards up to limit remaining bytes of a response body before
// closing it so the underlying connection can be reused.
func DrainAndClose(rc io.ReadCloser, limit int64) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, limit))
	_ = rc.Close()
}
