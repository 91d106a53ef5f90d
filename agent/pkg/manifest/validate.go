package manifest

import (
	"fmt"

	doublestar "github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"github.com/relaydeck/deploykit/common/filesystem"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("globpattern", func(fl validator.FieldLevel) bool {
		return doublestar.ValidatePattern(fl.Field().String())
	})
}

// Validate checks that exactly the variant matching Type is set and that it is well formed.
func (s Source) Validate() error {
	set := 0
	for _, populated := range []bool{s.Git != nil, s.Image != nil, s.Package != nil, s.Local != nil} {
		if populated {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: expected exactly one source variant, found %d", ErrInvalidSource, set)
	}

	var variant any
	var missing bool
	switch s.Type {
	case GitSourceType:
		variant, missing = s.Git, s.Git == nil
	case ImageSourceType:
		variant, missing = s.Image, s.Image == nil
	case PackageSourceType:
		variant, missing = s.Package, s.Package == nil
		if !missing && s.Package.Local && s.Package.Ecosystem == NPM && s.Package.InstallTarget == "" {
			return fmt.Errorf("%w: local npm installs require an install target", ErrInvalidSource)
		}
	case LocalSourceType:
		variant, missing = s.Local, s.Local == nil
		if !missing && s.Local.Filter != "" {
			if _, err := filesystem.CompileFilter(s.Local.Filter); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidSource, err)
			}
		}
	default:
		return fmt.Errorf("%w: unknown source type", ErrInvalidSource)
	}
	if missing {
		return fmt.Errorf("%w: type is %s but no %s settings were provided", ErrInvalidSource, s.Type, s.Type)
	}

	if err := validate.Struct(variant); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	return nil
}
