package transfer

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/adotools/witcopy/internal/ado"
)

// Attachment is one source attachment to transfer: where to download it
// from and the file name it should carry on the target.
type Attachment struct {
	URL  string
	Name string
}

// embeddedAttachmentPattern matches attachment download URLs pasted into
// HTML field values. Screenshots dropped into a description show up this
// way without any AttachedFile relation.
var embeddedAttachmentPattern = regexp.MustCompile(
	`(?i)https://dev\.azure\.com/[^"'<> ]+/_apis/wit/attachments/[^"'<> ]+`)

// DiscoverAttachments returns every attachment reachable from item:
// AttachedFile (and legacy AttachedImage) relations first, then URLs
// embedded in HTML field values. Duplicate URLs are reported once and
// field keys are scanned in sorted order, so the result is stable.
func DiscoverAttachments(item *ado.WorkItem) []Attachment {
	seen := make(map[string]bool)
	var out []Attachment

	for _, r := range item.Relations {
		if !isAttachmentRel(r.Rel) || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		name := r.Name()
		if name == "" {
			name = nameFromURL(r.URL, item.ID)
		}
		out = append(out, Attachment{URL: r.URL, Name: SanitizeFilename(name)})
	}

	keys := make([]string, 0, len(item.Fields))
	for k := range item.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s, ok := item.Fields[k].(string)
		if !ok {
			continue
		}
		for _, u := range embeddedAttachmentPattern.FindAllString(s, -1) {
			if seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, Attachment{URL: u, Name: SanitizeFilename(nameFromURL(u, item.ID))})
		}
	}
	return out
}

// isAttachmentRel reports whether a relation kind carries an attachment.
// Matched by substring: the service has shipped both AttachedFile and the
// legacy AttachedImage, with varying casing.
func isAttachmentRel(rel string) bool {
	rel = strings.ToLower(rel)
	return strings.Contains(rel, "attachedfile") || strings.Contains(rel, "attachedimage")
}

// nameFromURL recovers a file name from an attachment URL: the fileName
// query parameter when present, otherwise the last path segment, otherwise
// a placeholder derived from the source item id.
func nameFromURL(u string, sourceID int) string {
	if _, after, ok := strings.Cut(u, "fileName="); ok {
		name := after
		if i := strings.IndexByte(name, '&'); i >= 0 {
			name = name[:i]
		}
		if dec, err := url.QueryUnescape(name); err == nil {
			name = dec
		}
		if name != "" {
			return name
		}
	}
	trimmed := u
	if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		trimmed = trimmed[:i]
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 && i+1 < len(trimmed) {
		return trimmed[i+1:]
	}
	return "attachment_" + strconv.Itoa(sourceID)
}

// reservedFilenameChars are the characters Windows forbids in file names.
const reservedFilenameChars = `<>:"/\|?*`

// SanitizeFilename strips characters that cannot appear in file names on
// Windows and normalizes the rest to NFC, so a name survives the round
// trip through the attachment store and local disk on any platform.
func SanitizeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(reservedFilenameChars, r) {
			return -1
		}
		return r
	}, name)
	cleaned = norm.NFC.String(cleaned)
	if cleaned == "" {
		return "attachment"
	}
	return cleaned
}
