package mapping

import "strings"

// RemapRoot rewrites a backslash-separated classification path (area or
// iteration) for the target project: when the first segment is the source
// root it becomes the target root, otherwise the target root is prepended
// so the whole source tree nests under it. An empty source path collapses
// to the target root.
func RemapRoot(srcPath, srcRoot, tgtRoot string) string {
	if strings.TrimSpace(srcPath) == "" {
		return tgtRoot
	}
	parts := strings.Split(srcPath, `\`)
	if strings.EqualFold(parts[0], srcRoot) {
		parts[0] = tgtRoot
	} else {
		parts = append([]string{tgtRoot}, parts...)
	}
	return strings.Join(parts, `\`)
}
