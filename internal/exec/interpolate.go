package exec

import (
	"regexp"
	"strconv"
	"strings"
)

var referencePattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Interpolate expands every {{NodeName}} / {{NodeName.dotted.path}}
// placeholder in text against recorded node outputs and variables.
// References that cannot be resolved are left in the text unchanged.
func (c *Context) Interpolate(text string) string {
	return referencePattern.ReplaceAllStringFunc(text, func(match string) string {
		ref := referencePattern.FindStringSubmatch(match)[1]
		value, ok := c.ResolveReference(ref)
		if !ok {
			return match
		}
		return stringify(value)
	})
}

// ResolveReference resolves a single `NodeName` or `NodeName.dotted.path`
// reference (without the surrounding {{ }}) against node outputs first,
// falling back to the flat variables map when no node with that name/id
// exists. The first segment is the node name (preferred) or node id; the
// remaining dotted segments navigate into the node's output value. Integer
// segments index into arrays only when the value being navigated is itself
// an array; on a plain map, an all-digit segment is treated as a string key.
func (c *Context) ResolveReference(ref string) (interface{}, bool) {
	segments := strings.Split(ref, ".")
	if len(segments) == 0 || segments[0] == "" {
		return nil, false
	}

	head := segments[0]
	if nodeID, ok := c.nodeNameToID[head]; ok {
		if v, ok := c.Output(nodeID); ok {
			return getNestedValue(v, segments[1:])
		}
		return nil, false
	}
	if v, ok := c.Output(head); ok {
		return getNestedValue(v, segments[1:])
	}

	if v, ok := c.Variable(ref); ok {
		return v, true
	}
	return nil, false
}

// getNestedValue walks path segments into value. Integer segments index an
// array only when the current value is a slice; otherwise they are treated
// as plain map keys. An absent key or out-of-range index returns (nil,
// false) rather than panicking.
func getNestedValue(value interface{}, path []string) (interface{}, bool) {
	cur := value
	for _, seg := range path {
		if cur == nil {
			return nil, false
		}
		switch v := cur.(type) {
		case map[string]interface{}:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			cur = v[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return toJSONString(v)
	}
}
