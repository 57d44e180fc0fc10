package encode

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

var (
	timestampLayouts = []string{
		"2006-01-02 15:04:05.999999999",
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		time.DateOnly,
	}
	timeLayouts = []string{
		"15:04:05.999999999",
		"15:04:05.999999999Z07:00",
	}
)

func appendValue(builder array.Builder, value any) error {
	if value == nil {
		builder.AppendNull()
		return nil
	}

	switch b := builder.(type) {
	case *array.Int64Builder:
		v, err := toInt64(value)
		if err != nil {
			return err
		}
		b.Append(v)

	case *array.Uint64Builder:
		v, err := toUint64(value)
		if err != nil {
			return err
		}
		b.Append(v)

	case *array.Float64Builder:
		v, err := toFloat64(value)
		if err != nil {
			return err
		}
		b.Append(v)

	case *array.BooleanBuilder:
		v, err := toBool(value)
		if err != nil {
			return err
		}
		b.Append(v)

	case *array.TimestampBuilder:
		t, err := toTime(value, timestampLayouts)
		if err != nil {
			return err
		}
		b.Append(arrow.Timestamp(t.UTC().UnixMicro()))

	case *array.Date32Builder:
		t, err := toTime(value, timestampLayouts)
		if err != nil {
			return err
		}
		b.Append(arrow.Date32FromTime(t))

	case *array.Time64Builder:
		micros, err := toTimeOfDay(value)
		if err != nil {
			return err
		}
		b.Append(arrow.Time64(micros))

	case *array.BinaryBuilder:
		switch v := value.(type) {
		case []byte:
			b.Append(v)
		case string:
			b.AppendString(v)
		default:
			b.AppendString(fmt.Sprint(v))
		}

	case *array.StringBuilder:
		b.Append(toString(value))

	default:
		return fmt.Errorf("unsupported builder type %T", builder)
	}
	return nil
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("cannot stage %T as int64", value)
}

func toUint64(value any) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case int64:
		return uint64(v), nil
	case int:
		return uint64(v), nil
	case uint32:
		return uint64(v), nil
	case []byte:
		return strconv.ParseUint(string(v), 10, 64)
	case string:
		return strconv.ParseUint(v, 10, 64)
	}
	return 0, fmt.Errorf("cannot stage %T as uint64", value)
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	case string:
		return strconv.ParseFloat(v, 64)
	}
	return 0, fmt.Errorf("cannot stage %T as float64", value)
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case []byte:
		return strconv.ParseBool(string(v))
	case string:
		return strconv.ParseBool(v)
	}
	return false, fmt.Errorf("cannot stage %T as boolean", value)
}

func toTime(value any, layouts []string) (time.Time, error) {
	var s string
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return time.Time{}, fmt.Errorf("cannot stage %T as time", value)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// toTimeOfDay : microseconds since midnight
func toTimeOfDay(value any) (int64, error) {
	switch v := value.(type) {
	case time.Duration:
		return v.Microseconds(), nil
	case time.Time:
		midnight := time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, v.Location())
		return v.Sub(midnight).Microseconds(), nil
	}
	t, err := toTime(value, timeLayouts)
	if err != nil {
		return 0, err
	}
	return toTimeOfDay(t)
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}
