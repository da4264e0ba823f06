package domain

import "errors"

var (
	// ErrInvalidInput indicates a non-numeric or out-of-domain glucose, carb or ratio value.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidRatio indicates a carb ratio that is zero or negative.
	ErrInvalidRatio = errors.New("carb ratio must be >= 1")
	// ErrMalformedBackupRow indicates a backup row that does not match the entry schema.
	ErrMalformedBackupRow = errors.New("malformed backup row")
	// ErrMalformedBackup indicates a backup whose header is unusable or that has no valid rows.
	ErrMalformedBackup = errors.New("malformed backup")
	// ErrStoreIO indicates that the durable record store could not be read or written.
	ErrStoreIO = errors.New("record store i/o failure")
	// ErrAmbiguousSelection indicates that a timestamp selects more than one entry and the
	// caller must disambiguate with full-row equality.
	ErrAmbiguousSelection = errors.New("timestamp matches more than one entry")
)
