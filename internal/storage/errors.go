package storage

import (
	"github.com/TheMichaelB/jobhunt/internal/models"
)

// Re-exported so backends and callers share one set of sentinels.
var (
	ErrObjectNotFound     = models.ErrObjectNotFound
	ErrPreconditionFailed = models.ErrPreconditionFailed
)

func storeErr(op, key string, err error) error {
	return &models.StoreError{Op: op, Key: key, Err: err}
}
