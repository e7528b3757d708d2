package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// WorkerLogger derives a logger tagged with the worker identity from the
// process logger installed by the logging package.
func WorkerLogger(workerID, implementation string) zerolog.Logger {
	return log.Logger.With().
		Str("worker", workerID).
		Str("implementation", implementation).
		Logger()
}
