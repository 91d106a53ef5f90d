package manifest

import "errors"

var (
	ErrLoadingManifest = errors.New("unable to load manifest")
	ErrBadManifest     = errors.New("manifest failed verification")
	ErrInvalidSource   = errors.New("invalid source")
	ErrDuplicateTarget = errors.New("target path is used by more than one deployment")
	ErrLoadingRecord   = errors.New("unable to load deployment record")
)
