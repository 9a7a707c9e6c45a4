package indexer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/iammorganparry/clive/apps/recall/internal/embedding"
	"github.com/iammorganparry/clive/apps/recall/internal/models"
	"github.com/iammorganparry/clive/apps/recall/internal/store"
)

// Fingerprinter persists and removes fingerprints for stored content.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, contentType, contentID, text string) error
	Forget(ctx context.Context, contentType string, contentIDs []string) error
}

// Options bound how much of a file is read and fingerprinted.
type Options struct {
	SampleBytes  int
	MaxFileBytes int64
}

// Indexer records source files and their symbols as code files and
// snippets, each with a fingerprint.
type Indexer struct {
	code   *store.CodeStore
	fp     Fingerprinter
	opts   Options
	logger *slog.Logger
}

func New(code *store.CodeStore, fp Fingerprinter, opts Options, logger *slog.Logger) *Indexer {
	if opts.SampleBytes <= 0 {
		opts.SampleBytes = 8192
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = 1 << 20
	}
	return &Indexer{code: code, fp: fp, opts: opts, logger: logger}
}

// IndexFile reads path and indexes it. Closed files, directories and
// unreadable, oversized or binary files are skipped with false and no
// error. Errors are returned only when the code file row itself cannot be
// written.
func (ix *Indexer) IndexFile(ctx context.Context, path string, action models.FileAction) (bool, error) {
	if action == models.FileActionClose {
		ix.logger.Debug("skip indexing closed file", "path", path)
		return false, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		ix.logger.Warn("skip indexing unreadable file", "path", path, "error", err)
		return false, nil
	}
	if info.IsDir() {
		return false, nil
	}
	if info.Size() > ix.opts.MaxFileBytes {
		ix.logger.Warn("skip indexing large file", "path", path, "size", info.Size())
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		ix.logger.Warn("skip indexing unreadable file", "path", path, "error", err)
		return false, nil
	}
	if bytes.IndexByte(data, 0) >= 0 {
		ix.logger.Debug("skip indexing binary file", "path", path)
		return false, nil
	}

	lang := DetectLanguage(path)
	content := string(data)
	file, err := ix.code.UpsertFile(ctx, path, lang, info.Size())
	if err != nil {
		return false, err
	}

	ix.fingerprint(ctx, models.ContentTypeCodeFile, file.ID, embedding.SampleContent(content, ix.opts.SampleBytes))

	n := 0
	if IsCodeLanguage(lang) {
		snippets := toSnippets(Extract(lang, content), lang, 0)
		if n, err = ix.replaceSnippets(ctx, file.ID, snippets); err != nil {
			return true, err
		}
	}

	ix.logger.Info("indexed file", "path", path, "language", lang, "snippets", n)
	return true, nil
}

var fenceRe = regexp.MustCompile("(?s)```([^\\s`]*)[^\\n]*\\n(.*?)```")

// IndexText indexes the fenced code blocks in a stored message under the
// synthetic path "message:<id>". Blocks with no recognizable symbols are
// kept whole as one snippet. It returns the number of snippets written.
func (ix *Indexer) IndexText(ctx context.Context, messageID int64, text string) (int, error) {
	matches := fenceRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return 0, nil
	}

	var (
		snippets []*models.CodeSnippet
		fileLang string
	)
	for i, m := range matches {
		lang := LanguageForFence(text[m[2]:m[3]])
		if lang == "" {
			lang = LanguageText
		}
		if fileLang == "" {
			fileLang = lang
		}
		body := text[m[4]:m[5]]
		offset := strings.Count(text[:m[4]], "\n")

		found := toSnippets(Extract(lang, body), lang, offset)
		if len(found) == 0 && strings.TrimSpace(body) != "" {
			lines := strings.Count(strings.TrimRight(body, "\n"), "\n") + 1
			found = []*models.CodeSnippet{{
				SymbolName: "block-" + strconv.Itoa(i+1),
				SymbolKind: KindBlock,
				StartLine:  offset + 1,
				EndLine:    offset + lines,
				Content:    strings.TrimRight(body, "\n"),
				Language:   lang,
			}}
		}
		snippets = append(snippets, found...)
	}

	path := store.MessageFilePrefix + strconv.FormatInt(messageID, 10)
	file, err := ix.code.UpsertFile(ctx, path, fileLang, int64(len(text)))
	if err != nil {
		return 0, err
	}
	ix.fingerprint(ctx, models.ContentTypeCodeFile, file.ID, embedding.SampleContent(text, ix.opts.SampleBytes))

	return ix.replaceSnippets(ctx, file.ID, snippets)
}

func (ix *Indexer) replaceSnippets(ctx context.Context, fileID int64, snippets []*models.CodeSnippet) (int, error) {
	for _, sn := range snippets {
		sn.FileID = fileID
	}
	old, err := ix.code.ReplaceSnippets(ctx, fileID, snippets)
	if err != nil {
		return 0, fmt.Errorf("replace snippets: %w", err)
	}

	if len(old) > 0 {
		ids := make([]string, len(old))
		for i, id := range old {
			ids[i] = strconv.FormatInt(id, 10)
		}
		if err := ix.fp.Forget(ctx, models.ContentTypeCodeSnippet, ids); err != nil {
			ix.logger.Warn("remove stale snippet fingerprints", "file_id", fileID, "error", err)
		}
	}

	for _, sn := range snippets {
		ix.fingerprint(ctx, models.ContentTypeCodeSnippet, sn.ID, sn.SymbolName+"\n"+sn.Content)
	}
	return len(snippets), nil
}

func (ix *Indexer) fingerprint(ctx context.Context, contentType string, id int64, text string) {
	if err := ix.fp.Fingerprint(ctx, contentType, strconv.FormatInt(id, 10), text); err != nil {
		ix.logger.Warn("fingerprint failed", "content_type", contentType, "content_id", id, "error", err)
	}
}

func toSnippets(found []Extracted, lang string, lineOffset int) []*models.CodeSnippet {
	out := make([]*models.CodeSnippet, 0, len(found))
	for _, e := range found {
		out = append(out, &models.CodeSnippet{
			SymbolName: e.Name,
			SymbolKind: e.Kind,
			StartLine:  e.StartLine + lineOffset,
			EndLine:    e.EndLine + lineOffset,
			Content:    e.Content,
			Language:   lang,
		})
	}
	return out
}
