package repository

import (
	"fmt"

	apperrors "github.com/anirudh/go-ridebid/internal/errors"
)

// wrapStorage tags database errors so callers can surface them as
// StorageUnavailable. Mutations that fail here left the record unchanged.
func wrapStorage(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
}
