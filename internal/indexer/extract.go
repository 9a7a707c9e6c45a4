package indexer

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// Symbol kinds recorded on code snippets.
const (
	KindFunction = "function"
	KindClass    = "class"
	KindType     = "type"
	KindVariable = "variable"
	KindBlock    = "block"
)

// maxSignatureLines is how far past a symbol line a brace block may open
// before the symbol is treated as a one-line declaration.
const maxSignatureLines = 3

// Symbol is a named declaration recognized on a single line.
type Symbol struct {
	Name string
	Kind string
}

// Detector recognizes the line that starts a symbol.
type Detector interface {
	Detect(line string) (Symbol, bool)
}

// BlockStyle selects how the end of a symbol's body is found.
type BlockStyle int

const (
	// BraceBlocks track { } depth, ignoring braces in strings and line comments.
	BraceBlocks BlockStyle = iota
	// IndentBlocks end at the first non-blank line indented no deeper than
	// the symbol line.
	IndentBlocks
)

// Strategy describes how to extract symbols for one language.
type Strategy struct {
	Detector     Detector
	Style        BlockStyle
	LineComments []string
	// ClosingKeyword, for IndentBlocks, is a dedented line that still
	// belongs to the block, such as Ruby's "end".
	ClosingKeyword string
	// Lifetimes marks a language where 'ident without a closing quote two
	// runes later is a lifetime or label, not a character literal.
	Lifetimes bool
}

// Extracted is a symbol found in source with its 1-based line range.
type Extracted struct {
	Symbol
	StartLine int
	EndLine   int
	Content   string
}

type rule struct {
	kind string
	re   *regexp.Regexp
}

// RegexDetector tries each rule in order; the first capture group is the
// symbol name.
type RegexDetector []rule

func (d RegexDetector) Detect(line string) (Symbol, bool) {
	for _, r := range d {
		if m := r.re.FindStringSubmatch(line); m != nil {
			return Symbol{Name: m[1], Kind: r.kind}, true
		}
	}
	return Symbol{}, false
}

func rules(pairs ...string) RegexDetector {
	d := make(RegexDetector, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		d = append(d, rule{kind: pairs[i], re: regexp.MustCompile(pairs[i+1])})
	}
	return d
}

var (
	cStyleComments = []string{"//"}
	hashComments   = []string{"#"}

	jsDetector = rules(
		KindFunction, `^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)`,
		KindClass, `^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`,
		KindType, `^\s*(?:export\s+)?(?:declare\s+)?(?:interface|type|enum)\s+([A-Za-z_$][\w$]*)`,
		KindFunction, `^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(?:async\s*)?(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*(?::[^=]+)?=>`,
		KindVariable, `^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=`,
	)

	strategyMu sync.RWMutex
	strategies = map[string]Strategy{
		"javascript": {Detector: jsDetector, Style: BraceBlocks, LineComments: cStyleComments},
		"typescript": {Detector: jsDetector, Style: BraceBlocks, LineComments: cStyleComments},
		"python": {
			Detector: rules(
				KindFunction, `^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)`,
				KindClass, `^\s*class\s+([A-Za-z_]\w*)`,
				KindVariable, `^([A-Z_][A-Z0-9_]*)\s*(?::[^=]+)?=[^=]`,
			),
			Style:        IndentBlocks,
			LineComments: hashComments,
		},
		"go": {
			Detector: rules(
				KindFunction, `^func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)`,
				KindClass, `^type\s+([A-Za-z_]\w*)(?:\[[^\]]*\])?\s+(?:struct|interface)\b`,
				KindType, `^type\s+([A-Za-z_]\w*)`,
				KindVariable, `^(?:var|const)\s+([A-Za-z_]\w*)`,
			),
			Style:        BraceBlocks,
			LineComments: cStyleComments,
		},
		"rust": {
			Detector: rules(
				KindFunction, `^\s*(?:pub(?:\([^)]*\))?\s+)?(?:const\s+)?(?:async\s+)?(?:unsafe\s+)?fn\s+([A-Za-z_]\w*)`,
				KindClass, `^\s*(?:pub(?:\([^)]*\))?\s+)?(?:struct|enum|trait|union)\s+([A-Za-z_]\w*)`,
				KindClass, `^\s*impl(?:<[^>]*>)?\s+(?:[\w:<>, ]+\s+for\s+)?([A-Za-z_]\w*)`,
				KindVariable, `^\s*(?:pub\s+)?(?:const|static)\s+([A-Z_][A-Z0-9_]*)`,
			),
			Style:        BraceBlocks,
			LineComments: cStyleComments,
			Lifetimes:    true,
		},
		"java":   {Detector: jvmDetector(), Style: BraceBlocks, LineComments: cStyleComments},
		"csharp": {Detector: jvmDetector(), Style: BraceBlocks, LineComments: cStyleComments},
		"kotlin": {Detector: jvmDetector(), Style: BraceBlocks, LineComments: cStyleComments},
		"scala":  {Detector: jvmDetector(), Style: BraceBlocks, LineComments: cStyleComments},
		"c":      {Detector: cDetector(), Style: BraceBlocks, LineComments: cStyleComments},
		"cpp":    {Detector: cDetector(), Style: BraceBlocks, LineComments: cStyleComments},
		"swift": {
			Detector: rules(
				KindFunction, `^\s*(?:(?:public|private|internal|fileprivate|open|static|override|mutating)\s+)*func\s+([A-Za-z_]\w*)`,
				KindClass, `^\s*(?:(?:public|private|internal|fileprivate|open|final)\s+)*(?:class|struct|enum|protocol|extension|actor)\s+([A-Za-z_]\w*)`,
			),
			Style:        BraceBlocks,
			LineComments: cStyleComments,
		},
		"php": {
			Detector: rules(
				KindFunction, `^\s*(?:(?:public|private|protected|static|abstract|final)\s+)*function\s+&?([A-Za-z_]\w*)`,
				KindClass, `^\s*(?:(?:abstract|final|readonly)\s+)*(?:class|interface|trait|enum)\s+([A-Za-z_]\w*)`,
			),
			Style:        BraceBlocks,
			LineComments: []string{"//", "#"},
		},
		"ruby": {
			Detector: rules(
				KindFunction, `^\s*def\s+(?:self\.)?([A-Za-z_]\w*[?!=]?)`,
				KindClass, `^\s*(?:class|module)\s+([A-Z]\w*)`,
			),
			Style:          IndentBlocks,
			LineComments:   hashComments,
			ClosingKeyword: "end",
		},
		"shell": {
			Detector: rules(
				KindFunction, `^\s*(?:function\s+)?([A-Za-z_][\w-]*)\s*\(\)`,
				KindFunction, `^\s*function\s+([A-Za-z_][\w-]*)`,
			),
			Style:        BraceBlocks,
			LineComments: hashComments,
		},
	}
)

func jvmDetector() RegexDetector {
	return rules(
		KindClass, `^\s*(?:(?:public|private|protected|internal|abstract|final|static|sealed|partial|data|open|inner|case)\s+)*(?:class|interface|enum|record|object|struct)\s+([A-Za-z_]\w*)`,
		KindFunction, `^\s*(?:(?:public|private|protected|internal|override|open|suspend|inline)\s+)*fun\s+(?:<[^>]*>\s*)?(?:[\w.]+\.)?([A-Za-z_]\w*)`,
		KindFunction, `^\s*def\s+([A-Za-z_]\w*)`,
		KindFunction, `^\s*(?:(?:public|private|protected|internal|static|final|abstract|override|async|virtual|synchronized|native)\s+)+[\w<>\[\],.?\s]*?\s*\b([A-Za-z_]\w*)\s*\(`,
	)
}

func cDetector() RegexDetector {
	return rules(
		KindClass, `^\s*(?:typedef\s+)?(?:class|struct|union|enum)\s+([A-Za-z_]\w*)\s*(?:[:{]|$)`,
		KindFunction, `^(?:[A-Za-z_][\w:<>]*[\s*&]+)+([A-Za-z_][\w:~]*)\s*\([^;]*\)?\s*(?:const\s*)?(?:\{.*)?$`,
	)
}

// RegisterStrategy installs or replaces the extraction strategy for lang.
func RegisterStrategy(lang string, s Strategy) {
	strategyMu.Lock()
	strategies[lang] = s
	strategyMu.Unlock()
}

// StrategyFor returns the strategy registered for lang.
func StrategyFor(lang string) (Strategy, bool) {
	strategyMu.RLock()
	defer strategyMu.RUnlock()
	s, ok := strategies[lang]
	return s, ok
}

// Extract finds top-level symbols in content. Languages without a
// registered strategy yield nothing.
func Extract(lang, content string) []Extracted {
	s, ok := StrategyFor(lang)
	if !ok || s.Detector == nil {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if s.Style == IndentBlocks {
		return extractIndented(s, lines)
	}
	return extractBraced(s, lines)
}

type blockState int

const (
	seeking blockState = iota
	inBlock
)

func extractBraced(s Strategy, lines []string) []Extracted {
	var (
		out    []Extracted
		state  = seeking
		sym    Symbol
		start  int
		depth  int
		opened bool
	)

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		code := stripLine(line, s.LineComments, s.Lifetimes)

		switch state {
		case seeking:
			found, ok := s.Detector.Detect(line)
			if !ok {
				continue
			}
			sym, start = found, i
			opens, closes := countBraces(code)
			depth, opened = opens-closes, opens > 0
			switch {
			case opened && depth <= 0:
				out = append(out, snippet(sym, lines, start, i))
			case !opened && endsDeclaration(sym.Kind, code):
				out = append(out, snippet(sym, lines, start, i))
			default:
				state = inBlock
			}

		case inBlock:
			if !opened {
				if _, ok := s.Detector.Detect(line); ok || i-start > maxSignatureLines {
					out = append(out, snippet(sym, lines, start, start))
					state = seeking
					i = start
					continue
				}
			}
			opens, closes := countBraces(code)
			if opens > 0 {
				opened = true
			}
			depth += opens - closes
			if (opened && depth <= 0) || (!opened && strings.HasSuffix(strings.TrimSpace(code), ";")) {
				out = append(out, snippet(sym, lines, start, i))
				state = seeking
			}
		}
	}

	if state == inBlock {
		end := len(lines) - 1
		if !opened {
			end = start
		}
		out = append(out, snippet(sym, lines, start, lastNonBlank(lines, start, end)))
	}
	return out
}

func extractIndented(s Strategy, lines []string) []Extracted {
	var (
		out      []Extracted
		state    = seeking
		sym      Symbol
		start    int
		base     int
		inTriple bool
	)

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		switch state {
		case seeking:
			found, ok := s.Detector.Detect(line)
			if !ok {
				continue
			}
			sym, start, base = found, i, indentOf(line)
			inTriple = togglesTriple(line)
			state = inBlock

		case inBlock:
			if inTriple {
				if togglesTriple(line) {
					inTriple = false
				}
				continue
			}
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || isCommentOnly(trimmed, s.LineComments) {
				continue
			}
			if indentOf(line) <= base {
				if s.ClosingKeyword != "" && firstWord(trimmed) == s.ClosingKeyword {
					out = append(out, snippet(sym, lines, start, i))
					state = seeking
					continue
				}
				out = append(out, snippet(sym, lines, start, lastNonBlank(lines, start, i-1)))
				state = seeking
				i--
				continue
			}
			if togglesTriple(line) {
				inTriple = true
			}
		}
	}

	if state == inBlock {
		out = append(out, snippet(sym, lines, start, lastNonBlank(lines, start, len(lines)-1)))
	}
	return out
}

func snippet(sym Symbol, lines []string, start, end int) Extracted {
	return Extracted{
		Symbol:    sym,
		StartLine: start + 1,
		EndLine:   end + 1,
		Content:   strings.Join(lines[start:end+1], "\n"),
	}
}

// stripLine empties string and character literals, keeping their quotes,
// and drops any trailing line comment so that braces inside them are not
// counted. With lifetimes, a quote that starts a lifetime is kept as is.
func stripLine(line string, comments []string, lifetimes bool) string {
	var b strings.Builder
	var quote rune
	escaped := false
	runes := []rune(line)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
				b.WriteRune(r)
			}
			continue
		}
		if r == '\'' && lifetimes && isLifetime(runes, i) {
			b.WriteRune(r)
			continue
		}
		if r == '"' || r == '\'' || r == '`' {
			quote = r
			b.WriteRune(r)
			continue
		}
		rest := string(runes[i:])
		for _, c := range comments {
			if strings.HasPrefix(rest, c) {
				return b.String()
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isLifetime reports whether the quote at runes[i] starts a lifetime such
// as 'a or 'static: an identifier follows and no quote closes it as 'x'.
func isLifetime(runes []rune, i int) bool {
	if i+1 >= len(runes) {
		return false
	}
	next := runes[i+1]
	if next != '_' && !unicode.IsLetter(next) {
		return false
	}
	return i+2 >= len(runes) || runes[i+2] != '\''
}

func countBraces(code string) (opens, closes int) {
	return strings.Count(code, "{"), strings.Count(code, "}")
}

// endsDeclaration reports whether a symbol line with no opening brace is
// complete on its own.
func endsDeclaration(kind, code string) bool {
	trimmed := strings.TrimSpace(code)
	if strings.HasSuffix(trimmed, ";") {
		return true
	}
	if kind != KindVariable && kind != KindType {
		return false
	}
	if strings.Count(trimmed, "(") != strings.Count(trimmed, ")") ||
		strings.Count(trimmed, "[") != strings.Count(trimmed, "]") {
		return false
	}
	for _, suffix := range []string{"(", "[", ",", "=", "=>", "\\", "+", "&&", "||", ":", "."} {
		if strings.HasSuffix(trimmed, suffix) {
			return false
		}
	}
	return true
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

func togglesTriple(line string) bool {
	n := strings.Count(line, `"""`) + strings.Count(line, `'''`)
	return n%2 == 1
}

func isCommentOnly(trimmed string, comments []string) bool {
	for _, c := range comments {
		if strings.HasPrefix(trimmed, c) {
			return true
		}
	}
	return false
}

func firstWord(trimmed string) string {
	if i := strings.IndexAny(trimmed, " \t;("); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}

func lastNonBlank(lines []string, start, end int) int {
	for end > start && strings.TrimSpace(lines[end]) == "" {
		end--
	}
	return end
}
