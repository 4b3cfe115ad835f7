package exec

import (
	"encoding/json"
	"fmt"
)

// toJSONString renders a non-string value for interpolation into text.
// Falls back to Go's default formatting if the value is not JSON-encodable
// (should not happen for values produced by node executors, which are
// required to be JSON-representable).
func toJSONString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s
	}
	return string(b)
}
