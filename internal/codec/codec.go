package codec

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// NotSerializableError reports a value that cannot cross the channel
// boundary. Path points at the offending node within the value tree.
type NotSerializableError struct {
	Path   string
	Kind   string
	Reason string
}

func (e *NotSerializableError) Error() string {
	return fmt.Sprintf("value at %s is not serializable: %s (%s)", e.Path, e.Reason, e.Kind)
}

// Marshal validates and encodes a value for transport. The value graph
// must consist of primitives, strings, sequences, and string-keyed
// mappings. Functions, channels, host handles, and cyclic structures
// fail with *NotSerializableError before any bytes are produced.
func Marshal(v any) ([]byte, error) {
	if err := Validate(v); err != nil {
		return nil, err
	}
	return sonic.Marshal(v)
}

// Unmarshal decodes a transported value into the canonical tree
// (nil, bool, float64, string, []any, map[string]any).
func Unmarshal(data []byte) (any, error) {
	var v any
	if err := sonic.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode message payload: %w", err)
	}
	return v, nil
}

// Clone deep-copies a value through the wire representation. Used where
// copy semantics are needed without an actual channel crossing.
func Clone(v any) (any, error) {
	data, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// Validate walks the value graph and reports the first node that cannot
// be represented on the wire. Cycles are detected by pointer identity
// along the current path, so shared (diamond) references remain legal.
func Validate(v any) error {
	return walk(reflect.ValueOf(v), "$", make(map[uintptr]struct{}))
}

func walk(val reflect.Value, path string, active map[uintptr]struct{}) error {
	if !val.IsValid() {
		return nil // nil literal
	}

	switch val.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.String:
		return nil

	case reflect.Float32, reflect.Float64:
		if f := val.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return &NotSerializableError{Path: path, Kind: "number", Reason: "not finite"}
		}
		return nil

	case reflect.Interface:
		if val.IsNil() {
			return nil
		}
		return walk(val.Elem(), path, active)

	case reflect.Ptr:
		if val.IsNil() {
			return nil
		}
		ptr := val.Pointer()
		if _, seen := active[ptr]; seen {
			return &NotSerializableError{Path: path, Kind: "pointer", Reason: "cyclic structure"}
		}
		active[ptr] = struct{}{}
		err := walk(val.Elem(), path, active)
		delete(active, ptr)
		return err

	case reflect.Slice, reflect.Array:
		var ptr uintptr
		if val.Kind() == reflect.Slice {
			if val.IsNil() {
				return nil
			}
			ptr = val.Pointer()
			if ptr != 0 && val.Len() > 0 {
				if _, seen := active[ptr]; seen {
					return &NotSerializableError{Path: path, Kind: "sequence", Reason: "cyclic structure"}
				}
				active[ptr] = struct{}{}
				defer delete(active, ptr)
			}
		}
		for i := 0; i < val.Len(); i++ {
			if err := walk(val.Index(i), path+"["+strconv.Itoa(i)+"]", active); err != nil {
				return err
			}
		}
		return nil

	case reflect.Map:
		if val.IsNil() {
			return nil
		}
		if val.Type().Key().Kind() != reflect.String {
			return &NotSerializableError{
				Path:   path,
				Kind:   "mapping",
				Reason: "mapping keys must be strings, got " + val.Type().Key().Kind().String(),
			}
		}
		ptr := val.Pointer()
		if _, seen := active[ptr]; seen {
			return &NotSerializableError{Path: path, Kind: "mapping", Reason: "cyclic structure"}
		}
		active[ptr] = struct{}{}
		defer delete(active, ptr)
		iter := val.MapRange()
		for iter.Next() {
			if err := walk(iter.Value(), path+"."+iter.Key().String(), active); err != nil {
				return err
			}
		}
		return nil

	case reflect.Struct:
		t := val.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			if tag, _, _ := strings.Cut(field.Tag.Get("json"), ","); tag == "-" {
				continue
			}
			if err := walk(val.Field(i), path+"."+field.Name, active); err != nil {
				return err
			}
		}
		return nil

	case reflect.Func:
		return &NotSerializableError{Path: path, Kind: "function", Reason: "functions cannot cross contexts"}

	case reflect.Chan:
		return &NotSerializableError{Path: path, Kind: "channel", Reason: "channels cannot cross contexts"}

	default:
		return &NotSerializableError{
			Path:   path,
			Kind:   val.Kind().String(),
			Reason: "no wire representation",
		}
	}
}
