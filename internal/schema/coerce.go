package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout — формат колонок типа date.
const DateLayout = "2006-01-02"

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`) // YYYY-MM-DD

// Coerce приводит значение к представлению, которое понимают все бэкенды:
// int64, float64, bool, string, time.Time, []byte.
// Пустая строка для нестроковых типов означает NULL.
func (t ColumnType) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && t != String && t != Text && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	switch t {
	case String, Text:
		return toStringStrict(v)
	case Int:
		return toIntStrict(v)
	case Float:
		return toFloatStrict(v)
	case Bool:
		return toBoolStrict(v)
	case Date:
		return toTime(v, true)
	case DateTime:
		return toTime(v, false)
	case UUID:
		return toUUID(v)
	case Binary:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
		return nil, errors.New("must be binary")
	}
	return v, nil
}

func toStringStrict(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return "", errors.New("must be string")
	}
}

func toIntStrict(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case float64:
		// JSON числа приходят как float64, проверяем целостность
		if t != float64(int64(t)) {
			return 0, errors.New("must be integer")
		}
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, errors.New("must be integer")
		}
		return n, nil
	case []byte:
		return toIntStrict(string(t))
	default:
		return 0, errors.New("must be integer")
	}
}

func toFloatStrict(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, errors.New("must be float")
		}
		return f, nil
	default:
		return 0, errors.New("must be float")
	}
}

func toBoolStrict(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int64: // sqlite хранит boolean как integer
		return t != 0, nil
	case int:
		return t != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y", "on":
			return true, nil
		case "false", "0", "no", "n", "off":
			return false, nil
		default:
			return false, errors.New("must be boolean")
		}
	default:
		return false, errors.New("must be boolean")
	}
}

func toTime(v any, dateOnly bool) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		if dateOnly {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if dateOnly {
			if !dateRe.MatchString(s) {
				return time.Time{}, errors.New("must match YYYY-MM-DD")
			}
			d, err := time.Parse(DateLayout, s)
			if err != nil {
				return time.Time{}, errors.New("invalid date")
			}
			return d, nil
		}
		// примем RFC3339 (в т.ч. с миллисекундами) и формат datetime-local из браузера
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts, nil
		}
		if ts, err := time.Parse("2006-01-02T15:04", s); err == nil {
			return ts, nil
		}
		return time.Time{}, errors.New("must be RFC3339 datetime")
	}
	return time.Time{}, fmt.Errorf("must be a date, got %T", v)
}

func toUUID(v any) (string, error) {
	switch t := v.(type) {
	case uuid.UUID:
		return t.String(), nil
	case [16]byte:
		return uuid.UUID(t).String(), nil
	case []byte:
		if len(t) == 16 {
			u, err := uuid.FromBytes(t)
			if err != nil {
				return "", errors.New("must be uuid")
			}
			return u.String(), nil
		}
		return toUUID(string(t))
	case string:
		u, err := uuid.Parse(strings.TrimSpace(t))
		if err != nil {
			return "", errors.New("must be uuid")
		}
		return u.String(), nil
	}
	return "", errors.New("must be uuid")
}

// FormatValue — строковое представление значения колонки (ключи в формах, ссылки).
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(DateLayout)
		}
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
