package helpers

import (
	"encoding/json"
	"time"
)

// NowMicros returns the current wall-clock time in microseconds.
func NowMicros() int64 {
	return time.Now().UnixMicro()
}

// ToJsonString converts any value to JSON string.
func ToJsonString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
