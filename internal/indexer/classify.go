package indexer

import (
	"regexp"
	"strings"
)

var (
	codeKeywordRe = regexp.MustCompile(`\b(function|class|const|let|var|import|export|return|def|func|struct|interface|package|async|await|public|private|protected|static|void|lambda|typeof|namespace|enum|impl|fn|elif|except|println|console)\b`)

	languageNameRe = regexp.MustCompile(`(?i)\b(javascript|typescript|python|golang|java|rust|ruby|php|swift|kotlin|scala|sql|html|css|bash|node\.?js|react|c\+\+|c#)(\b|\s|$)`)

	syntaxPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[{}]`),
		regexp.MustCompile(`\w+\([^)]*\)`),
		regexp.MustCompile(`=>|->|::|===|!==|==|!=|&&|\|\||\+=|:=`),
		regexp.MustCompile(`(^|\s)//|/\*|\*/|(^|\n)\s*#\s*\w`),
		regexp.MustCompile(`(?m);\s*$`),
		regexp.MustCompile(`\w+\[[^\]]*\]`),
		regexp.MustCompile(`<\/?[a-zA-Z][\w-]*[^>]*>`),
	}
)

// IsCodeRelated reports whether text looks like it discusses or contains
// code. A fenced code block is decisive. Otherwise two signals are
// required, where keywords, language names and each syntax pattern count
// once.
func IsCodeRelated(text string) bool {
	if strings.Contains(text, "```") {
		return true
	}

	signals := 0
	if codeKeywordRe.MatchString(text) {
		signals++
	}
	if languageNameRe.MatchString(text) {
		signals++
	}
	for _, re := range syntaxPatterns {
		if re.MatchString(text) {
			signals++
		}
		if signals >= 2 {
			return true
		}
	}
	return signals >= 2
}
