package mapping

import (
	"fmt"
	"strings"
)

// NormalizeIdentity flattens the shapes ADO uses for identity-valued
// fields into one unique-name string. The service sends plain strings
// ("Dana Ray <dana@example.com>") or identity objects whose populated
// name field depends on the backing directory, so the keys are tried in
// preference order. Returns "" when no usable name is present.
func NormalizeIdentity(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case map[string]any:
		for _, k := range []string{"uniqueName", "principalName", "mail", "email"} {
			if s, ok := val[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		if s, ok := val["displayName"].(string); ok {
			return strings.TrimSpace(s)
		}
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
