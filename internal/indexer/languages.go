package indexer

import (
	"path/filepath"
	"strings"
)

const (
	LanguageText     = "text"
	LanguageMarkdown = "markdown"
)

var extensionLanguages = map[string]string{
	".js":       "javascript",
	".mjs":      "javascript",
	".cjs":      "javascript",
	".jsx":      "javascript",
	".ts":       "typescript",
	".tsx":      "typescript",
	".py":       "python",
	".go":       "go",
	".rs":       "rust",
	".java":     "java",
	".kt":       "kotlin",
	".kts":      "kotlin",
	".scala":    "scala",
	".cs":       "csharp",
	".c":        "c",
	".h":        "c",
	".cpp":      "cpp",
	".cc":       "cpp",
	".cxx":      "cpp",
	".hpp":      "cpp",
	".rb":       "ruby",
	".php":      "php",
	".swift":    "swift",
	".sh":       "shell",
	".bash":     "shell",
	".zsh":      "shell",
	".sql":      "sql",
	".html":     "html",
	".css":      "css",
	".scss":     "css",
	".json":     "json",
	".yaml":     "yaml",
	".yml":      "yaml",
	".toml":     "toml",
	".md":       "markdown",
	".markdown": "markdown",
	".txt":      "text",
}

// fenceAliases maps code fence tags that are not language names themselves.
var fenceAliases = map[string]string{
	"js":     "javascript",
	"node":   "javascript",
	"ts":     "typescript",
	"py":     "python",
	"golang": "go",
	"rb":     "ruby",
	"rs":     "rust",
	"sh":     "shell",
	"bash":   "shell",
	"zsh":    "shell",
	"c++":    "cpp",
	"cs":     "csharp",
	"c#":     "csharp",
	"kt":     "kotlin",
	"yml":    "yaml",
	"md":     "markdown",
}

// DetectLanguage maps a file path to a language by extension, defaulting
// to "text".
func DetectLanguage(path string) string {
	if lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return LanguageText
}

// LanguageForFence maps a markdown code fence tag to a language, or "" if
// the tag is unknown.
func LanguageForFence(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if lang, ok := fenceAliases[tag]; ok {
		return lang
	}
	for _, lang := range extensionLanguages {
		if lang == tag {
			return lang
		}
	}
	return ""
}

// IsCodeLanguage reports whether snippets should be extracted for lang.
func IsCodeLanguage(lang string) bool {
	return lang != "" && lang != LanguageText && lang != LanguageMarkdown
}
