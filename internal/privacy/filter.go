package privacy

import (
	"regexp"
	"strings"
)

// privateBlock matches <private>...</private> spans across lines. Tag case
// is ignored.
var privateBlock = regexp.MustCompile(`(?is)<private>.*?</private>`)

// Strip removes private spans from text and trims what is left. ok is false
// when nothing but private content and whitespace remained.
func Strip(text string) (clean string, ok bool) {
	clean = strings.TrimSpace(privateBlock.ReplaceAllString(text, ""))
	return clean, clean != ""
}

// StripMetadata removes private spans from string values in md, dropping
// keys whose value was entirely private. md is modified in place.
func StripMetadata(md map[string]any) {
	for k, v := range md {
		s, isString := v.(string)
		if !isString || !privateBlock.MatchString(s) {
			continue
		}
		if clean, ok := Strip(s); ok {
			md[k] = clean
		} else {
			delete(md, k)
		}
	}
}
