// Package types catalogues the base SQL types the DSL accepts and groups
// them into the classes used for DEFAULT compatibility checks.
package types

import "strings"

// Category is the semantic meaning of a base type, independent of dialect.
type Category int

const (
	// CategoryUnknown represents a name that is not a base type.
	CategoryUnknown Category = iota
	CategorySmallInteger
	CategoryInteger
	CategoryBigInteger
	CategorySerial
	CategoryBigSerial
	CategoryDecimal
	CategoryFloat
	CategoryDouble
	CategoryText
	CategoryChar
	CategoryVarchar
	CategoryBlob
	CategoryTimestamp
	CategoryTimestampTZ
	CategoryDate
	CategoryTime
	CategoryInterval
	CategoryBoolean
	CategoryUUID
	CategoryJSON
	CategoryXML
	CategoryNetwork
	CategorySearch
	CategoryMap
)

// Class groups categories by the literal kinds they accept.
type Class int

const (
	ClassOther Class = iota
	ClassNumeric
	ClassText
	ClassJSON
	ClassUUID
	ClassBoolean
	ClassTemporal
	ClassBinary
)

func (c Class) String() string {
	switch c {
	case ClassNumeric:
		return "numeric"
	case ClassText:
		return "text"
	case ClassJSON:
		return "json"
	case ClassUUID:
		return "uuid"
	case ClassBoolean:
		return "boolean"
	case ClassTemporal:
		return "temporal"
	case ClassBinary:
		return "binary"
	default:
		return "other"
	}
}

var catalogue = map[string]Category{
	"SMALLINT":    CategorySmallInteger,
	"INT2":        CategorySmallInteger,
	"INT":         CategoryInteger,
	"INTEGER":     CategoryInteger,
	"INT4":        CategoryInteger,
	"BIGINT":      CategoryBigInteger,
	"INT8":        CategoryBigInteger,
	"SERIAL":      CategorySerial,
	"SMALLSERIAL": CategorySerial,
	"BIGSERIAL":   CategoryBigSerial,
	"DECIMAL":     CategoryDecimal,
	"NUMERIC":     CategoryDecimal,
	"MONEY":       CategoryDecimal,
	"REAL":        CategoryFloat,
	"FLOAT":       CategoryFloat,
	"FLOAT4":      CategoryFloat,
	"DOUBLE":      CategoryDouble,
	"FLOAT8":      CategoryDouble,
	"TEXT":        CategoryText,
	"CITEXT":      CategoryText,
	"STRING":      CategoryText,
	"CHAR":        CategoryChar,
	"CHARACTER":   CategoryChar,
	"VARCHAR":     CategoryVarchar,
	"BLOB":        CategoryBlob,
	"BYTEA":       CategoryBlob,
	"TIMESTAMP":   CategoryTimestamp,
	"DATETIME":    CategoryTimestamp,
	"TIMESTAMPTZ": CategoryTimestampTZ,
	"DATE":        CategoryDate,
	"TIME":        CategoryTime,
	"TIMETZ":      CategoryTime,
	"INTERVAL":    CategoryInterval,
	"BOOL":        CategoryBoolean,
	"BOOLEAN":     CategoryBoolean,
	"UUID":        CategoryUUID,
	"JSON":        CategoryJSON,
	"JSONB":       CategoryJSON,
	"XML":         CategoryXML,
	"INET":        CategoryNetwork,
	"CIDR":        CategoryNetwork,
	"MACADDR":     CategoryNetwork,
	"TSVECTOR":    CategorySearch,
	"HSTORE":      CategoryMap,
	"MAP":         CategoryMap,
}

// Lookup returns the category of a base type name. Names are case-insensitive.
func Lookup(name string) (Category, bool) {
	c, ok := catalogue[strings.ToUpper(name)]
	return c, ok
}

// IsBase reports whether name is a known base SQL type.
func IsBase(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// Canonical returns the upper-case spelling of a base type name, or name
// unchanged when it is not a base type.
func Canonical(name string) string {
	if IsBase(name) {
		return strings.ToUpper(name)
	}
	return name
}

// ClassOf returns the literal class of a category.
func ClassOf(c Category) Class {
	switch c {
	case CategorySmallInteger, CategoryInteger, CategoryBigInteger, CategorySerial,
		CategoryBigSerial, CategoryDecimal, CategoryFloat, CategoryDouble:
		return ClassNumeric
	case CategoryText, CategoryChar, CategoryVarchar, CategoryXML, CategoryNetwork:
		return ClassText
	case CategoryJSON, CategoryMap:
		return ClassJSON
	case CategoryUUID:
		return ClassUUID
	case CategoryBoolean:
		return ClassBoolean
	case CategoryTimestamp, CategoryTimestampTZ, CategoryDate, CategoryTime, CategoryInterval:
		return ClassTemporal
	case CategoryBlob:
		return ClassBinary
	default:
		return ClassOther
	}
}

// IsInteger reports whether the category only holds whole numbers.
func IsInteger(c Category) bool {
	switch c {
	case CategorySmallInteger, CategoryInteger, CategoryBigInteger, CategorySerial, CategoryBigSerial:
		return true
	default:
		return false
	}
}

// IsMapLike reports whether a type name denotes key/value storage.
func IsMapLike(name string) bool {
	c, ok := Lookup(name)
	return ok && c == CategoryMap
}
