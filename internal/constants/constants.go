package constants

import "time"

const (
	DatabaseTimeout = 5 * time.Second
	RecalcTimeout   = 5 * time.Minute
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	// Log a progress line every N matches during recomputation.
	RecalcProgressEvery = 50
)
