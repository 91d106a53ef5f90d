package filesystem

import "errors"

var (
	ErrSourceNotFound      = errors.New("source path does not exist")
	ErrTargetExists        = errors.New("target path already exists")
	ErrInvalidPattern      = errors.New("invalid exclude pattern")
	ErrInvalidFilter       = errors.New("invalid filter expression")
	ErrSymlinksUnsupported = errors.New("filesystem does not support symlinks")
)
