package registry

import "errors"

var (
	ErrUnsupportedFeature = errors.New("docker does not support the required feature")
	ErrMissingCredentials = errors.New("registry user and password are required")
	ErrMissingImage       = errors.New("no image specified")
)
