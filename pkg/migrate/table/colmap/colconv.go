// package colmap
//
// maps native database column types onto the canonical columnar type system
// used for schema comparison and for staged parquet files
package colmap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/baderkha/shelter/pkg/migrate/table"
)

// Type : canonical columnar type
type Type string

const (
	SignedInt64     Type = "int64"
	UnsignedInt64   Type = "uint64"
	Float64         Type = "float64"
	Boolean         Type = "boolean"
	TimestampMicros Type = "timestamp[us]"
	Date32          Type = "date32"
	TimeMicros      Type = "time64[us]"
	Binary          Type = "binary"
	String          Type = "string"
	Unsupported     Type = "unsupported"
)

var (
	intKeywords = map[string]bool{
		"tinyint": true, "smallint": true, "mediumint": true, "int": true, "integer": true, "bigint": true,
		"int2": true, "int4": true, "int8": true, "smallserial": true, "serial": true, "bigserial": true,
		"byteint": true,
	}
	floatKeywords = map[string]bool{
		"float": true, "double": true, "real": true, "decimal": true, "numeric": true,
		"float4": true, "float8": true, "number": true,
	}
	boolKeywords = map[string]bool{
		"bool": true, "boolean": true,
	}
	binaryKeywords = map[string]bool{
		"binary": true, "varbinary": true, "blob": true, "tinyblob": true, "mediumblob": true,
		"longblob": true, "bytea": true,
	}
	stringKeywords = map[string]bool{
		"char": true, "varchar": true, "text": true, "tinytext": true, "mediumtext": true, "longtext": true,
		"string": true, "character": true, "nchar": true, "nvarchar": true, "bpchar": true,
	}

	scaleRe = regexp.MustCompile(`\(\s*\d+\s*,\s*(\d+)\s*\)`)
)

// Canonical : maps a native type string such as "bigint(20) unsigned" or "DECIMAL(10,2)"
// onto the canonical type system. Integers are checked before the unsigned modifier,
// decimals fold into Float64.
func Canonical(native string) Type {
	lowered := strings.ToLower(strings.TrimSpace(native))
	base := baseKeyword(lowered)

	switch {
	case intKeywords[base]:
		if strings.Contains(lowered, "unsigned") {
			return UnsignedInt64
		}
		return SignedInt64
	case base == "number" && numberIsIntegral(lowered):
		return SignedInt64
	case floatKeywords[base]:
		return Float64
	case boolKeywords[base]:
		return Boolean
	case strings.HasPrefix(base, "timestamp") || base == "datetime":
		return TimestampMicros
	case base == "date":
		return Date32
	case base == "time" || base == "timetz":
		return TimeMicros
	case binaryKeywords[base]:
		return Binary
	case stringKeywords[base]:
		return String
	}
	return Unsupported
}

// Convert : like Canonical but errors out when the type has no canonical mapping
func Convert(native string) (Type, error) {
	t := Canonical(native)
	if t == Unsupported {
		return t, fmt.Errorf("col type %s does not have a columnar mapping", native)
	}
	return t, nil
}

// Field : a column projected onto the canonical type system
type Field struct {
	Name   string
	Native string
	Type   Type
}

// Project : canonical view of a schema, same order
func Project(s table.Schema) []Field {
	res := make([]Field, len(s))
	for i, c := range s {
		res[i] = Field{Name: c.Name, Native: c.Type, Type: Canonical(c.Type)}
	}
	return res
}

func baseKeyword(lowered string) string {
	base := strings.Split(lowered, "(")[0]
	if fields := strings.Fields(base); len(fields) > 0 {
		return fields[0]
	}
	return base
}

// snowflake reports every integer as NUMBER(p,0)
func numberIsIntegral(lowered string) bool {
	m := scaleRe.FindStringSubmatch(lowered)
	if m == nil {
		return true
	}
	scale, err := strconv.Atoi(m[1])
	return err == nil && scale == 0
}
