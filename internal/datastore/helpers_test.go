package datastore

import (
	aqerrors "github.com/aquaguard/aquaguard-go/internal/errors"
)

func isNotFound(err error) bool {
	return aqerrors.IsNotFound(err)
}
