package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/iammorganparry/clive/apps/recall/internal/config"
	"github.com/iammorganparry/clive/apps/recall/internal/embedding"
	"github.com/iammorganparry/clive/apps/recall/internal/models"
	"github.com/iammorganparry/clive/apps/recall/internal/search"
	"github.com/iammorganparry/clive/apps/recall/internal/store"
)

// window is how many rows a partition fetches and how many it keeps.
type window struct {
	fetch, keep int
}

var (
	messageWindow   = window{fetch: 15, keep: 5}
	fileWindow      = window{fetch: 10, keep: 5}
	projectWindow   = window{fetch: 10, keep: 3}
	episodeWindow   = window{fetch: 15, keep: 5}
	longTermMinimum = models.ImportanceMedium
)

const labelLength = 200

// AssemblerOptions are the thresholds and mode the assembler runs with.
type AssemblerOptions struct {
	Mode               config.StorageMode
	RelevanceThreshold float64
	SemanticThreshold  float64
	SemanticLimit      int
}

// Stores groups the record stores the assembler reads from.
type Stores struct {
	Messages *store.MessageStore
	Files    *store.ActiveFileStore
	Project  *store.ProjectStore
	Episodes *store.EpisodeStore
	Code     *store.CodeStore
}

// Assembler builds context snapshots across every memory partition.
type Assembler struct {
	stores   Stores
	embedder embedding.Embedder
	scorer   *search.Scorer
	searcher *search.Searcher
	opts     AssemblerOptions
	logger   *slog.Logger
}

func NewAssembler(stores Stores, embedder embedding.Embedder, scorer *search.Scorer, searcher *search.Searcher, opts AssemblerOptions, logger *slog.Logger) *Assembler {
	if opts.SemanticLimit <= 0 {
		opts.SemanticLimit = config.DefaultSearchLimit
	}
	return &Assembler{
		stores:   stores,
		embedder: embedder,
		scorer:   scorer,
		searcher: searcher,
		opts:     opts,
		logger:   logger,
	}
}

// snapshotErrors serializes writes to the per-partition error lists.
type snapshotErrors struct {
	mu sync.Mutex
}

func (e *snapshotErrors) add(list *[]string, partition string, err error) {
	e.mu.Lock()
	*list = append(*list, fmt.Sprintf("%s: %v", partition, err))
	e.mu.Unlock()
}

// Assemble returns a snapshot for query, which may be empty. It never
// fails: a partition that cannot be read is left empty and its error is
// recorded on it.
func (a *Assembler) Assemble(ctx context.Context, query string) *models.ContextSnapshot {
	snap := &models.ContextSnapshot{
		ShortTerm: models.ShortTermContext{
			RecentMessages: []models.Scored[models.Message]{},
			ActiveFiles:    []models.Scored[models.ActiveFile]{},
		},
		LongTerm: models.LongTermContext{
			Milestones:   []models.Scored[models.Milestone]{},
			Decisions:    []models.Scored[models.Decision]{},
			Requirements: []models.Scored[models.Requirement]{},
		},
		Episodic: models.EpisodicContext{
			RecentEpisodes: []models.Scored[models.Episode]{},
		},
		Query:   query,
		Storage: string(a.opts.Mode),
	}

	var qv []float32
	if strings.TrimSpace(query) != "" {
		qv = a.embedder.Embed(ctx, query)
		snap.Semantic = &models.SemanticContext{
			SimilarMessages: []models.SemanticMatch{},
			SimilarFiles:    []models.SemanticMatch{},
			CodeSnippets:    []models.SnippetGroup{},
		}
	}

	var (
		g    errgroup.Group
		errs snapshotErrors
		st   = &snap.ShortTerm
		lt   = &snap.LongTerm
		ep   = &snap.Episodic
	)
	part := func(list *[]string, name string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				errs.add(list, name, err)
				a.logger.Warn("context partition failed", "partition", name, "error", err)
			}
			return nil
		})
	}

	part(&st.Errors, "recentMessages", func() (err error) {
		items, err := a.stores.Messages.Recent(ctx, messageWindow.fetch)
		if err != nil {
			return err
		}
		st.RecentMessages, err = pick(ctx, a, items, messageKey, qv, messageWindow.keep,
			models.ContentTypeUserMessage, models.ContentTypeAssistantMessage)
		return err
	})
	part(&st.Errors, "activeFiles", func() (err error) {
		items, err := a.stores.Files.Recent(ctx, fileWindow.fetch)
		if err != nil {
			return err
		}
		st.ActiveFiles, err = pick(ctx, a, items, fileKey, qv, fileWindow.keep, models.ContentTypeActiveFile)
		return err
	})
	part(&lt.Errors, "milestones", func() (err error) {
		items, err := a.stores.Project.RecentMilestones(ctx, projectWindow.fetch, longTermMinimum)
		if err != nil {
			return err
		}
		lt.Milestones, err = pick(ctx, a, items, milestoneKey, qv, projectWindow.keep, models.ContentTypeMilestone)
		return err
	})
	part(&lt.Errors, "decisions", func() (err error) {
		items, err := a.stores.Project.RecentDecisions(ctx, projectWindow.fetch, longTermMinimum)
		if err != nil {
			return err
		}
		lt.Decisions, err = pick(ctx, a, items, decisionKey, qv, projectWindow.keep, models.ContentTypeDecision)
		return err
	})
	part(&lt.Errors, "requirements", func() (err error) {
		items, err := a.stores.Project.RecentRequirements(ctx, projectWindow.fetch, longTermMinimum)
		if err != nil {
			return err
		}
		lt.Requirements, err = pick(ctx, a, items, requirementKey, qv, projectWindow.keep, models.ContentTypeRequirement)
		return err
	})
	part(&ep.Errors, "recentEpisodes", func() (err error) {
		items, err := a.stores.Episodes.Recent(ctx, episodeWindow.fetch)
		if err != nil {
			return err
		}
		ep.RecentEpisodes, err = pick(ctx, a, items, episodeKey, qv, episodeWindow.keep, models.ContentTypeEpisode)
		return err
	})

	if sem := snap.Semantic; sem != nil {
		part(&sem.Errors, "similarMessages", func() (err error) {
			sem.SimilarMessages, err = a.similarMessages(ctx, qv)
			return err
		})
		part(&sem.Errors, "similarFiles", func() (err error) {
			sem.SimilarFiles, err = a.similarFiles(ctx, qv)
			return err
		})
		part(&sem.Errors, "codeSnippets", func() (err error) {
			sem.CodeSnippets, err = a.codeSnippets(ctx, qv)
			return err
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		snap.Error = fmt.Sprintf("context assembly interrupted: %v", err)
	}
	snap.GeneratedAt = time.Now().UTC()
	return snap
}

// pick keeps the keep most relevant items when a query vector is given and
// the keep most recent otherwise. items must be in recency order.
func pick[T any](ctx context.Context, a *Assembler, items []T, key func(T) string, qv []float32, keep int, primary string, secondary ...string) ([]models.Scored[T], error) {
	if qv == nil {
		return models.Unscored(head(items, keep)), nil
	}
	scored, err := search.ScoreItems(ctx, a.scorer, items, key, qv, a.opts.RelevanceThreshold, primary, secondary...)
	if err != nil {
		return []models.Scored[T]{}, err
	}
	return head(scored, keep), nil
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func (a *Assembler) search(ctx context.Context, qv []float32, types ...string) ([]search.Match, error) {
	return a.searcher.Search(ctx, search.Query{
		Vector:       qv,
		ContentTypes: types,
		Limit:        a.opts.SemanticLimit,
		Threshold:    a.opts.SemanticThreshold,
	})
}

func (a *Assembler) similarMessages(ctx context.Context, qv []float32) ([]models.SemanticMatch, error) {
	matches, err := a.search(ctx, qv, models.ContentTypeUserMessage, models.ContentTypeAssistantMessage)
	if err != nil {
		return []models.SemanticMatch{}, err
	}
	msgs, err := a.stores.Messages.GetMany(ctx, numericIDs(matches))
	if err != nil {
		return []models.SemanticMatch{}, err
	}
	labels := make(map[string]string, len(msgs))
	for _, m := range msgs {
		labels[messageKey(m)] = truncate(m.Content, labelLength)
	}
	return labelMatches(matches, func(fp models.Fingerprint) (string, bool) {
		l, ok := labels[fp.ContentID]
		return l, ok
	}), nil
}

func (a *Assembler) similarFiles(ctx context.Context, qv []float32) ([]models.SemanticMatch, error) {
	matches, err := a.search(ctx, qv, models.ContentTypeActiveFile, models.ContentTypeCodeFile)
	if err != nil {
		return []models.SemanticMatch{}, err
	}

	var activeIDs, codeIDs []int64
	for _, m := range matches {
		id, err := strconv.ParseInt(m.Fingerprint.ContentID, 10, 64)
		if err != nil {
			continue
		}
		if m.Fingerprint.ContentType == models.ContentTypeActiveFile {
			activeIDs = append(activeIDs, id)
		} else {
			codeIDs = append(codeIDs, id)
		}
	}
	active, err := a.stores.Files.GetMany(ctx, activeIDs)
	if err != nil {
		return []models.SemanticMatch{}, err
	}
	code, err := a.stores.Code.GetFiles(ctx, codeIDs)
	if err != nil {
		return []models.SemanticMatch{}, err
	}

	labels := make(map[string]string, len(active)+len(code))
	for _, f := range active {
		labels[models.ContentTypeActiveFile+":"+fileKey(f)] = f.Filename
	}
	for _, f := range code {
		labels[models.ContentTypeCodeFile+":"+strconv.FormatInt(f.ID, 10)] = f.Path
	}
	return labelMatches(matches, func(fp models.Fingerprint) (string, bool) {
		l, ok := labels[fp.ContentType+":"+fp.ContentID]
		return l, ok
	}), nil
}

// codeSnippets groups snippet hits by file path. Groups are ranked by
// their best snippet; snippets keep their similarity order.
func (a *Assembler) codeSnippets(ctx context.Context, qv []float32) ([]models.SnippetGroup, error) {
	matches, err := a.search(ctx, qv, models.ContentTypeCodeSnippet)
	if err != nil {
		return []models.SnippetGroup{}, err
	}
	rows, err := a.stores.Code.SnippetsWithPaths(ctx, numericIDs(matches))
	if err != nil {
		return []models.SnippetGroup{}, err
	}
	byID := make(map[string]models.SnippetWithPath, len(rows))
	for _, r := range rows {
		byID[strconv.FormatInt(r.ID, 10)] = r
	}

	groups := make(map[string]*models.SnippetGroup)
	var order []string
	for _, m := range matches {
		sn, ok := byID[m.Fingerprint.ContentID]
		if !ok {
			continue
		}
		g, ok := groups[sn.FilePath]
		if !ok {
			g = &models.SnippetGroup{FilePath: sn.FilePath, Relevance: m.Similarity}
			groups[sn.FilePath] = g
			order = append(order, sn.FilePath)
		}
		g.Relevance = max(g.Relevance, m.Similarity)
		g.Snippets = append(g.Snippets, models.SnippetMatch{
			SnippetID:  sn.ID,
			SymbolName: sn.SymbolName,
			SymbolKind: sn.SymbolKind,
			StartLine:  sn.StartLine,
			EndLine:    sn.EndLine,
			Language:   sn.Language,
			Similarity: m.Similarity,
			Content:    sn.Content,
		})
	}

	out := make([]models.SnippetGroup, 0, len(order))
	for _, p := range order {
		out = append(out, *groups[p])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Relevance > out[j].Relevance
	})
	return out, nil
}

// labelMatches keeps the matches whose owning record still exists.
func labelMatches(matches []search.Match, label func(models.Fingerprint) (string, bool)) []models.SemanticMatch {
	out := make([]models.SemanticMatch, 0, len(matches))
	for _, m := range matches {
		l, ok := label(m.Fingerprint)
		if !ok {
			continue
		}
		out = append(out, models.SemanticMatch{
			ContentID:   m.Fingerprint.ContentID,
			ContentType: m.Fingerprint.ContentType,
			Similarity:  m.Similarity,
			Label:       l,
		})
	}
	return out
}

func numericIDs(matches []search.Match) []int64 {
	ids := make([]int64, 0, len(matches))
	for _, m := range matches {
		if id, err := strconv.ParseInt(m.Fingerprint.ContentID, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func messageKey(m models.Message) string         { return strconv.FormatInt(m.ID, 10) }
func fileKey(f models.ActiveFile) string         { return strconv.FormatInt(f.ID, 10) }
func milestoneKey(m models.Milestone) string     { return strconv.FormatInt(m.ID, 10) }
func decisionKey(d models.Decision) string       { return strconv.FormatInt(d.ID, 10) }
func requirementKey(r models.Requirement) string { return strconv.FormatInt(r.ID, 10) }
func episodeKey(e models.Episode) string         { return strconv.FormatInt(e.ID, 10) }

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
