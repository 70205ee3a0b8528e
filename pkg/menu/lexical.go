package menu

import (
	"context"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// Compile-time check that *LexicalIndex satisfies Retriever.
var _ Retriever = (*LexicalIndex)(nil)

// defaultMinScore is the Jaro-Winkler score below which an entry is not
// considered relevant to the query at all.
const defaultMinScore = 0.55

// LexicalIndex is a [Retriever] that ranks menu entries by string
// similarity between the customer query and each entry's class and
// name. It serves as the retrieval fallback when no vector index or
// embedder is configured, and tolerates speech-recognition noise with
// Jaro-Winkler scoring over full strings and pairwise tokens, best
// score wins.
//
// The index is immutable after construction and safe for concurrent
// use.
type LexicalIndex struct {
	entries  []Entry
	minScore float64
}

// NewLexicalIndex builds an index over the given entries.
func NewLexicalIndex(entries []Entry) *LexicalIndex {
	idx := &LexicalIndex{
		entries:  make([]Entry, len(entries)),
		minScore: defaultMinScore,
	}
	copy(idx.entries, entries)
	return idx
}

// Search returns up to topK entries ranked by descending similarity to
// query. Entries scoring below the relevance floor are omitted, so the
// result may be shorter than topK (or empty).
func (idx *LexicalIndex) Search(query string, topK int) []Entry {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || topK <= 0 {
		return nil
	}
	queryTokens := strings.Fields(query)

	type scored struct {
		entry Entry
		score float64
	}
	ranked := make([]scored, 0, len(idx.entries))
	for _, e := range idx.entries {
		s := entryScore(queryTokens, query, e)
		if s < idx.minScore {
			continue
		}
		ranked = append(ranked, scored{entry: e, score: s})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	result := make([]Entry, len(ranked))
	for i, r := range ranked {
		result[i] = r.entry
	}
	return result
}

// RetrieveContext implements [Retriever]. The top-ranked entries are
// formatted with [FormatEntries] for direct inclusion in the generator
// prompt.
func (idx *LexicalIndex) RetrieveContext(_ context.Context, query string, topK int) (string, error) {
	return FormatEntries(idx.Search(query, topK)), nil
}

// Names returns every indexed item name. Used to build recognition
// keyword hints for the ASR provider.
func (idx *LexicalIndex) Names() []string {
	names := make([]string, 0, len(idx.entries))
	for _, e := range idx.entries {
		names = append(names, e.Name)
	}
	return names
}

// entryScore computes the best Jaro-Winkler similarity between the
// query and the entry's name, class, and class+name concatenation, as
// well as the best pairwise query-token-to-name score. Substring
// containment between query and name scores highest outright, since
// Jaro-Winkler puts short CJK fragments like 紅茶 inside 古早紅茶 at
// zero.
func entryScore(queryTokens []string, query string, e Entry) float64 {
	name := strings.ToLower(e.Name)
	class := strings.ToLower(e.Class)

	if strings.Contains(name, query) || strings.Contains(query, name) {
		return 1
	}
	for _, t := range queryTokens {
		if t != "" && strings.Contains(name, t) {
			return 1
		}
	}

	score := matchr.JaroWinkler(query, name, false)
	if s := matchr.JaroWinkler(query, class, false); s > score {
		score = s
	}
	if class != "" {
		if s := matchr.JaroWinkler(query, class+name, false); s > score {
			score = s
		}
	}
	for _, t := range queryTokens {
		if s := matchr.JaroWinkler(t, name, false); s > score {
			score = s
		}
	}
	return score
}
