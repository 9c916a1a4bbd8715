package supervisor

import (
	"strconv"
	"strings"
)

// Record is a read-only mapping from option name to value.
type Record map[string]any

// Bool looks up a boolean flag.
//
// A nil value counts as absent. Strings are parsed the way oscrc values are
// (1/0, true/false, yes/no, on/off); unparsable values count as absent.
func (r Record) Bool(name string) (value, ok bool) {
	v, found := r[name]
	if !found || v == nil {
		return false, false
	}
	switch v := v.(type) {
	case bool:
		return v, true
	case *bool:
		if v == nil {
			return false, false
		}
		return *v, true
	case int:
		return v != 0, true
	case string:
		return parseBool(v)
	default:
		return false, false
	}
}

func parseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "on":
		return true, true
	case "no", "off":
		return false, true
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return b, true
}

// flag resolves name from options first, then from configuration.
func flag(p Program, name string) bool {
	if v, ok := p.Options().Bool(name); ok {
		return v
	}
	v, _ := p.Config().Bool(name)
	return v
}
