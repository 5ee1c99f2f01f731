package configtest

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/multierr"
)

// keys become cli flag names and MEETING_* env vars
var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)

func checkYAMLTags(t reflect.Type, seen map[reflect.Type]struct{}) error {
	if _, ok := seen[t]; ok {
		return nil
	}
	seen[t] = struct{}{}

	switch t.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.Pointer:
		return checkYAMLTags(t.Elem(), seen)
	case reflect.Struct:
		if t.PkgPath() != "" && !strings.HasPrefix(t.PkgPath(), "github.com/WebRTC-CN/") {
			// types from other modules own their tags
			return nil
		}

		var errs error
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)

			if !field.IsExported() {
				continue
			}

			if field.Type.Kind() == reflect.Bool {
				continue
			}

			if field.Tag.Get("config") == "allowempty" {
				continue
			}

			parts := strings.Split(field.Tag.Get("yaml"), ",")
			if parts[0] == "-" {
				continue
			}

			inline := slices.Contains(parts, "inline")
			if !slices.Contains(parts, "omitempty") && !inline {
				errs = multierr.Append(errs, fmt.Errorf("%s/%s.%s missing omitempty tag", t.PkgPath(), t.Name(), field.Name))
			}
			if !inline && !keyPattern.MatchString(parts[0]) {
				errs = multierr.Append(errs, fmt.Errorf("%s/%s.%s key %q is not snake_case", t.PkgPath(), t.Name(), field.Name, parts[0]))
			}

			errs = multierr.Append(errs, checkYAMLTags(field.Type, seen))
		}
		return errs
	default:
		return nil
	}
}

// CheckYAMLTags reports fields of config whose yaml key is not snake_case, and non-boolean
// fields missing omitempty.
func CheckYAMLTags(config any) error {
	return checkYAMLTags(reflect.TypeOf(config), map[reflect.Type]struct{}{})
}
