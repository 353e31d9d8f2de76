package entity

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/relabs-tech/kurbisio-cms/core/catalog"
)

// Cast tells how a stored column value is turned into a typed value
type Cast string

// all casts. Text-like columns are not cast.
const (
	CastString   Cast = "string"
	CastInteger  Cast = "integer"
	CastBoolean  Cast = "boolean"
	CastDatetime Cast = "datetime"
	CastJSON     Cast = "json"
	CastID       Cast = "id"
)

func castOf(f *catalog.ContentField) Cast {
	switch f.Type {
	case catalog.FieldInteger:
		return CastInteger
	case catalog.FieldBoolean:
		return CastBoolean
	case catalog.FieldDatetime:
		return CastDatetime
	case catalog.FieldJSON, catalog.FieldComponent, catalog.FieldDynamicZone:
		return CastJSON
	case catalog.FieldMedia, catalog.FieldRelation:
		return CastID
	}
	return CastString
}

// datetime layouts accepted on write, most specific first
var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var errCast = errors.New("cannot cast")

// decode turns a scanned database value into its typed value
func (c Cast) decode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c {
	case CastInteger:
		switch t := v.(type) {
		case int64:
			return t, nil
		case []byte:
			return strconv.ParseInt(string(t), 10, 64)
		}
	case CastBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case CastDatetime:
		if t, ok := v.(time.Time); ok {
			return t.UTC(), nil
		}
	case CastJSON:
		var raw []byte
		switch t := v.(type) {
		case []byte:
			raw = t
		case string:
			raw = []byte(t)
		default:
			return nil, fmt.Errorf("%w %T to json", errCast, v)
		}
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	case CastID, CastString:
		switch t := v.(type) {
		case []byte:
			return string(t), nil
		case string:
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w %T to %s", errCast, v, c)
}

// encode turns an input attribute into a query parameter for the column type
func (c Cast) encode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c {
	case CastString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, errors.New("must be a string")
	case CastID:
		s, ok := v.(string)
		if !ok {
			return nil, errors.New("must be an identifier")
		}
		if _, err := uuid.Parse(s); err != nil {
			return nil, errors.New("must be a valid identifier")
		}
		return s, nil
	case CastInteger:
		switch t := v.(type) {
		case int:
			return int64(t), nil
		case int32:
			return int64(t), nil
		case int64:
			return t, nil
		case float64:
			if t == math.Trunc(t) && math.Abs(t) <= math.MaxInt32 {
				return int64(t), nil
			}
		case json.Number:
			return t.Int64()
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				return n, nil
			}
		}
		return nil, errors.New("must be an integer")
	case CastBoolean:
		switch t := v.(type) {
		case bool:
			return t, nil
		case float64:
			if t == 0 || t == 1 {
				return t == 1, nil
			}
		case int:
			if t == 0 || t == 1 {
				return t == 1, nil
			}
		case string:
			if b, err := strconv.ParseBool(t); err == nil {
				return b, nil
			}
		}
		return nil, errors.New("must be a boolean")
	case CastDatetime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case *time.Time:
			if t == nil {
				return nil, nil
			}
			return t.UTC(), nil
		case string:
			if ts, ok := ParseDatetime(t); ok {
				return ts, nil
			}
		}
		return nil, errors.New("must be a date")
	case CastJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.New("must be valid json")
		}
		return string(b), nil
	}
	return nil, fmt.Errorf("%w to %s", errCast, c)
}

// ParseDatetime parses the datetime formats accepted on write
func ParseDatetime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
