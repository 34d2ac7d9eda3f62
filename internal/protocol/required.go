package protocol

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// requireFields reports the first field of t that raw does not carry.
// Pointer fields and fields tagged omitempty are optional. A null value
// counts as present; type errors are left to json.Unmarshal.
func requireFields(raw json.RawMessage, t reflect.Type) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil
		}
		if obj == nil {
			return nil
		}
		for _, field := range reflect.VisibleFields(t) {
			if !field.IsExported() || field.Anonymous {
				continue
			}
			name, opts, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				continue
			}
			if name == "" {
				name = field.Name
			}
			value, ok := obj[name]
			if !ok {
				if field.Type.Kind() == reflect.Pointer || strings.Contains(opts, "omitempty") {
					continue
				}
				return fmt.Errorf("missing field %q", name)
			}
			if err := requireFields(value, field.Type); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	case reflect.Slice:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		for i, item := range items {
			if err := requireFields(item, t.Elem()); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	}
	return nil
}
