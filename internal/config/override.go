package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// ApplyOverrides applies --set key=value pairs to a loaded Config.
// Keys use dot notation for nested fields (e.g. "shell.backend",
// "terminal.max_lines"). Map fields take "shell.env.NAME=value".
// Returns an error for unknown keys or type mismatches.
func ApplyOverrides(cfg *Config, overrides []string) error {
	for _, ov := range overrides {
		idx := strings.IndexByte(ov, '=')
		if idx < 0 {
			return fmt.Errorf("invalid override %q: must be key=value", ov)
		}
		key := ov[:idx]
		value := ov[idx+1:]

		if err := setField(cfg, key, value); err != nil {
			return fmt.Errorf("override %q: %w", key, err)
		}
	}
	return cfg.Validate()
}

// setField sets a field on the Config struct by yaml tag path (dot-separated).
func setField(cfg *Config, key, value string) error {
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		field, ok := findFieldByYAMLTag(v.Type(), part)
		if !ok {
			return fmt.Errorf("unknown field %q", key)
		}
		fv := v.FieldByIndex(field.Index)

		if fv.Kind() == reflect.Map {
			if i != len(parts)-2 {
				return fmt.Errorf("field %q needs exactly one map key", key)
			}
			if fv.IsNil() {
				fv.Set(reflect.MakeMap(fv.Type()))
			}
			fv.SetMapIndex(reflect.ValueOf(parts[i+1]), reflect.ValueOf(value))
			return nil
		}

		if i < len(parts)-1 {
			if fv.Kind() != reflect.Struct {
				return fmt.Errorf("field %q is not a struct, cannot access nested field", part)
			}
			v = fv
			continue
		}

		return setTypedValue(fv, value, key)
	}

	return nil
}

// setTypedValue sets a reflect.Value from a string, with type coercion.
func setTypedValue(fv reflect.Value, value, key string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("field %q: expected duration (e.g. 3s), got %q", key, value)
		}
		fv.SetInt(int64(d))
		return nil
	}
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(value)
	case reflect.Bool:
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("field %q: expected bool (true/false), got %q", key, value)
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("field %q: expected int, got %q", key, value)
		}
		fv.SetInt(int64(n))
	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("field %q: unsupported type %s", key, fv.Type())
		}
		// A list override replaces the whole list.
		fv.Set(reflect.ValueOf([]string{value}))
	default:
		return fmt.Errorf("field %q: unsupported type %s", key, fv.Type())
	}
	return nil
}

// parseBool parses "true" or "false" (case-insensitive).
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool: %q", s)
	}
}

// findFieldByYAMLTag finds a struct field by its yaml tag name.
func findFieldByYAMLTag(t reflect.Type, tag string) (reflect.StructField, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		yamlTag := f.Tag.Get("yaml")
		if yamlTag == "" {
			continue
		}
		tagName := yamlTag
		if comma := strings.IndexByte(yamlTag, ','); comma >= 0 {
			tagName = yamlTag[:comma]
		}
		if tagName == tag {
			return f, true
		}
	}
	return reflect.StructField{}, false
}
