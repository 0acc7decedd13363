package model

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type is the dialect-independent semantic type of a column.
type Type int

const (
	TypeUnknown Type = iota
	Integer
	BigInt
	Float
	Decimal
	Bool
	String
	Text
	Bytes
	Time
	UUID
	JSON
)

var typeNames = map[Type]string{
	TypeUnknown: "unknown",
	Integer:     "integer",
	BigInt:      "bigint",
	Float:       "float",
	Decimal:     "decimal",
	Bool:        "bool",
	String:      "string",
	Text:        "text",
	Bytes:       "bytes",
	Time:        "time",
	UUID:        "uuid",
	JSON:        "json",
}

// String returns the lowercase type name used in tags and schema files.
func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType resolves a type name as written in a tag or schema file.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer", "int32":
		return Integer, nil
	case "bigint", "int64", "long":
		return BigInt, nil
	case "float", "double", "real":
		return Float, nil
	case "decimal", "numeric":
		return Decimal, nil
	case "bool", "boolean":
		return Bool, nil
	case "string", "varchar":
		return String, nil
	case "text":
		return Text, nil
	case "bytes", "blob", "binary":
		return Bytes, nil
	case "time", "datetime", "timestamp":
		return Time, nil
	case "uuid":
		return UUID, nil
	case "json", "jsonb":
		return JSON, nil
	}
	return TypeUnknown, fmt.Errorf("unknown column type %q", s)
}

var (
	timeType        = reflect.TypeOf(time.Time{})
	uuidType        = reflect.TypeOf(uuid.UUID{})
	decimalType     = reflect.TypeOf(decimal.Decimal{})
	nullDecimalType = reflect.TypeOf(decimal.NullDecimal{})
	rawJSONType     = reflect.TypeOf(json.RawMessage{})
	bytesType       = reflect.TypeOf([]byte{})
)

var nullTypes = map[reflect.Type]Type{
	reflect.TypeOf(sql.NullString{}):  String,
	reflect.TypeOf(sql.NullInt64{}):   BigInt,
	reflect.TypeOf(sql.NullInt32{}):   Integer,
	reflect.TypeOf(sql.NullInt16{}):   Integer,
	reflect.TypeOf(sql.NullFloat64{}): Float,
	reflect.TypeOf(sql.NullBool{}):    Bool,
	reflect.TypeOf(sql.NullTime{}):    Time,
	reflect.TypeOf(uuid.NullUUID{}):   UUID,
	nullDecimalType:                   Decimal,
}

// InferType maps a Go field type to its semantic type.
// nullable reports whether the Go type can hold a missing value.
func InferType(rt reflect.Type) (t Type, nullable bool, err error) {
	if rt.Kind() == reflect.Pointer {
		t, _, err = InferType(rt.Elem())
		return t, true, err
	}
	if nt, ok := nullTypes[rt]; ok {
		return nt, true, nil
	}

	switch rt {
	case timeType:
		return Time, false, nil
	case uuidType:
		return UUID, false, nil
	case decimalType:
		return Decimal, false, nil
	case rawJSONType:
		return JSON, true, nil
	case bytesType:
		return Bytes, true, nil
	}

	switch rt.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return Integer, false, nil
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64:
		return BigInt, false, nil
	case reflect.Float32, reflect.Float64:
		return Float, false, nil
	case reflect.Bool:
		return Bool, false, nil
	case reflect.String:
		return String, false, nil
	case reflect.Slice:
		if rt.Elem().Kind() == reflect.Uint8 {
			return Bytes, true, nil
		}
	}
	return TypeUnknown, false, fmt.Errorf("no column type for Go type %s", rt)
}
