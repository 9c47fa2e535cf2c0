package db

import (
	"fmt"
	"strconv"
	"time"
)

// FormatValue renders a stored value the way it is written in CSV files
// and shown to users. NULL renders as "".
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format(logDateFormat)
	default:
		return fmt.Sprint(v)
	}
}

// FormatRows renders every value of rows.
func FormatRows(rows [][]any) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = FormatValue(v)
		}
	}
	return out
}

func rowKey(values []any) string {
	key := make([]byte, 0, 16*len(values))
	for _, v := range values {
		s := FormatValue(v)
		key = strconv.AppendInt(key, int64(len(s)), 10)
		key = append(key, ':')
		key = append(key, s...)
	}
	return string(key)
}
