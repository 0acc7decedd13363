package model

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Assign stores a driver value into dst, converting between the representations drivers hand
// back (int64 for booleans on SQLite, []byte for text on MySQL, strings for timestamps) and the
// Go field type. A nil src stores the zero value.
func Assign(dst reflect.Value, src any) error {
	if !dst.CanSet() {
		return fmt.Errorf("cannot assign to %s", dst.Type())
	}
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.CanAddr() && dst.Addr().Type().Implements(scannerType) {
		return dst.Addr().Interface().(sql.Scanner).Scan(src)
	}
	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := Assign(elem.Elem(), src); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst.Type()) {
		if b, ok := src.([]byte); ok {
			dst.Set(reflect.ValueOf(append([]byte(nil), b...)))
			return nil
		}
		dst.Set(sv)
		return nil
	}

	switch dst.Type() {
	case timeType:
		t, err := toTime(src)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	case uuidType:
		u, err := toUUID(src)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(u))
		return nil
	}

	switch dst.Kind() {
	case reflect.String:
		switch s := src.(type) {
		case []byte:
			dst.SetString(string(s))
			return nil
		case time.Time:
			dst.SetString(s.Format(time.RFC3339Nano))
			return nil
		}
		if isNumber(sv.Kind()) || sv.Kind() == reflect.Bool {
			dst.SetString(fmt.Sprint(src))
			return nil
		}
	case reflect.Bool:
		switch {
		case isNumber(sv.Kind()):
			dst.SetBool(!sv.IsZero())
			return nil
		case sv.Kind() == reflect.String || sv.Kind() == reflect.Slice:
			b, err := strconv.ParseBool(asString(src))
			if err != nil {
				return err
			}
			dst.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		switch {
		case isNumber(sv.Kind()):
			dst.Set(sv.Convert(dst.Type()))
			return nil
		case sv.Kind() == reflect.Bool:
			if sv.Bool() {
				dst.Set(reflect.ValueOf(1).Convert(dst.Type()))
			} else {
				dst.Set(reflect.Zero(dst.Type()))
			}
			return nil
		case sv.Kind() == reflect.String || sv.Kind() == reflect.Slice:
			f, err := strconv.ParseFloat(asString(src), 64)
			if err != nil {
				return err
			}
			dst.Set(reflect.ValueOf(f).Convert(dst.Type()))
			return nil
		}
	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			switch s := src.(type) {
			case []byte:
				dst.Set(reflect.ValueOf(append([]byte(nil), s...)).Convert(dst.Type()))
				return nil
			case string:
				dst.Set(reflect.ValueOf([]byte(s)).Convert(dst.Type()))
				return nil
			}
		}
	}

	if sv.Type().ConvertibleTo(dst.Type()) && sv.Kind() == dst.Kind() {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", src, dst.Type())
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func asString(src any) string {
	if b, ok := src.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(src)
}

func toTime(src any) (time.Time, error) {
	switch v := src.(type) {
	case time.Time:
		return v, nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case string, []byte:
		s := asString(v)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
	}
	return time.Time{}, fmt.Errorf("cannot assign %T to time.Time", src)
}

func toUUID(src any) (uuid.UUID, error) {
	switch v := src.(type) {
	case string:
		return uuid.Parse(v)
	case []byte:
		if len(v) == 16 {
			return uuid.FromBytes(v)
		}
		return uuid.ParseBytes(v)
	}
	return uuid.Nil, fmt.Errorf("cannot assign %T to uuid.UUID", src)
}
