package indexer

import (
	"testing"
)

type wantSymbol struct {
	name       string
	kind       string
	start, end int
}

func checkSymbols(t *testing.T, got []Extracted, want []wantSymbol) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d symbols, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		g := got[i]
		if g.Name != w.name || g.Kind != w.kind || g.StartLine != w.start || g.EndLine != w.end {
			t.Fatalf("symbol %d: got %s %s [%d-%d], want %s %s [%d-%d]",
				i, g.Kind, g.Name, g.StartLine, g.EndLine, w.kind, w.name, w.start, w.end)
		}
	}
}

func TestExtractBraced(t *testing.T) {
	tests := []struct {
		name string
		lang string
		src  string
		want []wantSymbol
	}{
		{
			name: "javascript function and class",
			lang: "javascript",
			src: "function greet(name) {\n" +
				"  return `hi ${name}`;\n" +
				"}\n" +
				"\n" +
				"class Greeter {\n" +
				"  greet() { return 1; }\n" +
				"}\n",
			want: []wantSymbol{
				{"greet", KindFunction, 1, 3},
				{"Greeter", KindClass, 5, 7},
			},
		},
		{
			name: "go braces in strings and comments",
			lang: "go",
			src: "package main\n" +
				"\n" +
				"type Server struct {\n" +
				"\taddr string // {\n" +
				"}\n" +
				"\n" +
				"func (s *Server) Start() error {\n" +
				"\tfmt.Println(\"{\")\n" +
				"\treturn nil\n" +
				"}\n" +
				"\n" +
				"const Version = \"1.0\"\n",
			want: []wantSymbol{
				{"Server", KindClass, 3, 5},
				{"Start", KindFunction, 7, 10},
				{"Version", KindVariable, 12, 12},
			},
		},
		{
			name: "typescript one-line type then interface",
			lang: "typescript",
			src: "export type Id = string\n" +
				"export interface User {\n" +
				"  id: Id\n" +
				"}\n",
			want: []wantSymbol{
				{"Id", KindType, 1, 1},
				{"User", KindType, 2, 4},
			},
		},
		{
			name: "arrow function constant",
			lang: "typescript",
			src: "export const add = (a: number, b: number) => {\n" +
				"  return a + b;\n" +
				"};\n",
			want: []wantSymbol{
				{"add", KindFunction, 1, 3},
			},
		},
		{
			name: "brace on the next line",
			lang: "java",
			src: "public class App\n" +
				"{\n" +
				"    public static void main(String[] args)\n" +
				"    {\n" +
				"        System.out.println(\"}\");\n" +
				"    }\n" +
				"}\n",
			want: []wantSymbol{
				{"App", KindClass, 1, 7},
			},
		},
		{
			name: "block that never opens falls back to one line",
			lang: "javascript",
			src: "class Base\n" +
				"function helper() {\n" +
				"  return 1;\n" +
				"}\n",
			want: []wantSymbol{
				{"Base", KindClass, 1, 1},
				{"helper", KindFunction, 2, 4},
			},
		},
		{
			name: "rust lifetimes are not character literals",
			lang: "rust",
			src: "fn first<'a>(x: &'a str, y: &'a str) -> &'a str {\n" +
				"    let c = 'x';\n" +
				"    if x.len() > 0 { x } else { y }\n" +
				"}\n" +
				"\n" +
				"impl<'a> Parser<'a> {\n" +
				"    fn peek(&self) -> char { '{' }\n" +
				"}\n",
			want: []wantSymbol{
				{"first", KindFunction, 1, 4},
				{"Parser", KindClass, 6, 8},
			},
		},
		{
			name: "unterminated block runs to the last non-blank line",
			lang: "rust",
			src: "pub fn broken() {\n" +
				"    let x = 1;\n" +
				"\n",
			want: []wantSymbol{
				{"broken", KindFunction, 1, 2},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkSymbols(t, Extract(tt.lang, tt.src), tt.want)
		})
	}
}

func TestStripLine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		lifetimes bool
		want      string
	}{
		{"string literal", `fmt.Println("{") // }`, false, `fmt.Println("") `},
		{"char literal", `let c = '{';`, true, `let c = '';`},
		{"escaped char literal", `let c = '\'';`, true, `let c = '';`},
		{"lifetime", `fn f<'a>(x: &'a str) -> &'a str {`, true, `fn f<'a>(x: &'a str) -> &'a str {`},
		{"static lifetime", `const S: &'static str = "{";`, true, `const S: &'static str = "";`},
		{"quote without lifetimes", `fn f<'a>(x: &'a str) -> &'a str {`, false, `fn f<''a str) -> &'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripLine(tt.line, cStyleComments, tt.lifetimes); got != tt.want {
				t.Fatalf("stripLine(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestExtractIndented(t *testing.T) {
	t.Run("python", func(t *testing.T) {
		src := "import os\n" +
			"\n" +
			"MAX_RETRIES = 3\n" +
			"\n" +
			"class Client:\n" +
			"    \"\"\"Doc\n" +
			"string\"\"\"\n" +
			"\n" +
			"    def get(self):\n" +
			"        return 1\n" +
			"\n" +
			"def main():\n" +
			"    c = Client()\n" +
			"    # done\n" +
			"    print(c.get())\n"
		checkSymbols(t, Extract("python", src), []wantSymbol{
			{"MAX_RETRIES", KindVariable, 3, 3},
			{"Client", KindClass, 5, 10},
			{"main", KindFunction, 12, 15},
		})
	})

	t.Run("ruby closing keyword", func(t *testing.T) {
		src := "class Greeter\n" +
			"  def hello\n" +
			"    puts \"hi\"\n" +
			"  end\n" +
			"end\n" +
			"\n" +
			"def top?\n" +
			"  1\n" +
			"end\n"
		checkSymbols(t, Extract("ruby", src), []wantSymbol{
			{"Greeter", KindClass, 1, 5},
			{"top?", KindFunction, 7, 9},
		})
	})
}

func TestExtractUnknownLanguage(t *testing.T) {
	if got := Extract("cobol", "IDENTIFICATION DIVISION."); got != nil {
		t.Fatalf("expected nothing, got %+v", got)
	}
}

func TestRegisterStrategy(t *testing.T) {
	RegisterStrategy("lua", Strategy{
		Detector:     rules(KindFunction, `^\s*(?:local\s+)?function\s+([\w.:]+)`),
		Style:        IndentBlocks,
		LineComments: []string{"--"},
		// "end" closes the block at the function's own indentation
		ClosingKeyword: "end",
	})
	t.Cleanup(func() {
		strategyMu.Lock()
		delete(strategies, "lua")
		strategyMu.Unlock()
	})

	got := Extract("lua", "local function greet(name)\n  print(name)\nend\n")
	checkSymbols(t, got, []wantSymbol{{"greet", KindFunction, 1, 3}})
}

func TestLanguages(t *testing.T) {
	paths := map[string]string{
		"/src/app.tsx":     "typescript",
		"main.GO":          "go",
		"README.md":        "markdown",
		"Makefile":         "text",
		"lib/server.rb":    "ruby",
		"include/vector.h": "c",
	}
	for path, want := range paths {
		if got := DetectLanguage(path); got != want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", path, got, want)
		}
	}

	fences := map[string]string{
		"js":      "javascript",
		"Python":  "python",
		"golang":  "go",
		"rust":    "rust",
		"":        "",
		"mermaid": "",
	}
	for tag, want := range fences {
		if got := LanguageForFence(tag); got != want {
			t.Errorf("LanguageForFence(%q) = %q, want %q", tag, got, want)
		}
	}

	if IsCodeLanguage(LanguageText) || IsCodeLanguage(LanguageMarkdown) || !IsCodeLanguage("go") {
		t.Error("IsCodeLanguage misclassified text, markdown or go")
	}
}
