// Package index maintains the derived lookup structures over a store's snippets.
//
// THREE INDEXES:
//   - category id → snippet ids, kept ordered by snippet Seq (store order)
//   - tag id      → set of snippet ids
//   - token       → set of snippet ids, narrowing free-text search
//
// Search is a case-insensitive substring match. The token index only picks
// candidates; each candidate is confirmed against its lowercased text.
//
// The store calls the mutation methods inside each commit, so by the time a
// commit returns the index already reflects it. Build produces the same
// structure from a snapshot in one pass; the two paths must always agree.
//
// An Index is not safe for concurrent use. The store's owner serializes access.
package index

import (
	"cmp"
	"slices"
	"sort"
	"strings"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/model"
)

type idSet map[string]struct{}

type entry struct {
	seq        uint64
	categoryID string
	tagIDs     []string
	tokens     []string

	// Lowercased haystacks for Search. visible is set for Markdown only.
	label   string
	content string
	visible string
}

// Index is the query side of a store.
type Index struct {
	snippets   map[string]entry
	byCategory map[string][]string
	byTag      map[string]idSet
	byToken    map[string]idSet

	// sortedTokens backs prefix search. It is rebuilt lazily after any
	// change to the token vocabulary.
	sortedTokens []string
	tokensDirty  bool
}

// New returns an empty index.
func New() *Index {
	return &Index{
		snippets:   make(map[string]entry),
		byCategory: make(map[string][]string),
		byTag:      make(map[string]idSet),
		byToken:    make(map[string]idSet),
	}
}

// Build indexes a whole snapshot. Snippets must carry their Seq.
func Build(snap model.Snapshot) *Index {
	idx := New()
	for _, c := range snap.Categories {
		idx.AddCategory(c.ID)
	}
	for _, t := range snap.Tags {
		idx.AddTag(t.ID)
	}
	for _, s := range snap.Snippets {
		idx.PutSnippet(s)
	}
	return idx
}

// AddCategory registers an empty category so lookups on it succeed.
func (idx *Index) AddCategory(id string) {
	if _, ok := idx.byCategory[id]; !ok {
		idx.byCategory[id] = []string{}
	}
}

// RemoveCategory forgets a category. The store re-puts its former members
// before calling this.
func (idx *Index) RemoveCategory(id string) {
	delete(idx.byCategory, id)
}

func (idx *Index) AddTag(id string) {
	if _, ok := idx.byTag[id]; !ok {
		idx.byTag[id] = idSet{}
	}
}

func (idx *Index) RemoveTag(id string) {
	delete(idx.byTag, id)
}

// PutSnippet indexes s, replacing whatever was indexed for s.ID before.
func (idx *Index) PutSnippet(s model.Snippet) {
	idx.RemoveSnippet(s.ID)

	e := entry{
		seq:        s.Seq,
		categoryID: s.CategoryID,
		tagIDs:     slices.Clone(s.TagIDs),
		label:      strings.ToLower(s.Label),
		content:    strings.ToLower(s.Content),
	}
	if s.IsMarkdown {
		e.visible = strings.Join(strings.Fields(strings.ToLower(PlainText(s.Content))), " ")
	}
	e.tokens = distinct(Tokenize(e.label), Tokenize(e.content), Tokenize(e.visible))
	idx.snippets[s.ID] = e

	if e.categoryID != "" {
		ids := idx.byCategory[e.categoryID]
		pos, _ := slices.BinarySearchFunc(ids, e.seq, idx.compareSeq)
		idx.byCategory[e.categoryID] = slices.Insert(ids, pos, s.ID)
	}
	for _, tagID := range e.tagIDs {
		set, ok := idx.byTag[tagID]
		if !ok {
			set = idSet{}
			idx.byTag[tagID] = set
		}
		set[s.ID] = struct{}{}
	}
	for _, tok := range e.tokens {
		set, ok := idx.byToken[tok]
		if !ok {
			set = idSet{}
			idx.byToken[tok] = set
			idx.tokensDirty = true
		}
		set[s.ID] = struct{}{}
	}
}

// RemoveSnippet drops every index entry for id. Unknown ids are ignored.
func (idx *Index) RemoveSnippet(id string) {
	e, ok := idx.snippets[id]
	if !ok {
		return
	}
	delete(idx.snippets, id)

	if e.categoryID != "" {
		idx.byCategory[e.categoryID] = slices.DeleteFunc(idx.byCategory[e.categoryID], func(other string) bool {
			return other == id
		})
	}
	for _, tagID := range e.tagIDs {
		delete(idx.byTag[tagID], id)
	}
	for _, tok := range e.tokens {
		set := idx.byToken[tok]
		delete(set, id)
		if len(set) == 0 {
			delete(idx.byToken, tok)
			idx.tokensDirty = true
		}
	}
}

// FindByCategory returns the category's snippet ids in store order.
func (idx *Index) FindByCategory(categoryID string) ([]string, error) {
	ids, ok := idx.byCategory[categoryID]
	if !ok {
		return nil, apperror.NotFound("category", categoryID)
	}
	return slices.Clone(ids), nil
}

// FindByTag returns the ids carrying the tag, in store order.
func (idx *Index) FindByTag(tagID string) ([]string, error) {
	set, ok := idx.byTag[tagID]
	if !ok {
		return nil, apperror.NotFound("tag", tagID)
	}
	return idx.ordered(set), nil
}

// Search returns ids whose label or content contains query, ignoring case.
// Markdown snippets also match on their rendered text, so "bold text" finds
// "**bold** text". An empty query matches every snippet.
//
// CANDIDATES:
// A query word that follows a separator inside the query must begin some
// token of a matching snippet, so it is looked up by prefix. The leading
// word may start mid-token and is looked up by substring over the
// vocabulary. The candidates are then checked against the full text.
func (idx *Index) Search(query string) []string {
	q := strings.ToLower(query)
	if q == "" {
		return idx.All()
	}

	lead, anchored := queryWords(q)
	var candidates idSet
	if lead != "" || len(anchored) > 0 {
		idx.refreshTokens()
		if lead != "" {
			candidates = idx.tokensMatching(func(tok string) bool { return strings.Contains(tok, lead) })
		}
		for _, w := range anchored {
			matched := idx.tokensWithPrefix(w)
			if candidates == nil {
				candidates = matched
				continue
			}
			for id := range candidates {
				if _, ok := matched[id]; !ok {
					delete(candidates, id)
				}
			}
		}
	} else {
		// Nothing but separators: every snippet is a candidate.
		candidates = make(idSet, len(idx.snippets))
		for id := range idx.snippets {
			candidates[id] = struct{}{}
		}
	}

	for id := range candidates {
		e := idx.snippets[id]
		if !strings.Contains(e.label, q) && !strings.Contains(e.content, q) &&
			(e.visible == "" || !strings.Contains(e.visible, q)) {
			delete(candidates, id)
		}
	}
	return idx.ordered(candidates)
}

func (idx *Index) tokensWithPrefix(prefix string) idSet {
	matched := idSet{}
	start := sort.SearchStrings(idx.sortedTokens, prefix)
	for _, tok := range idx.sortedTokens[start:] {
		if !strings.HasPrefix(tok, prefix) {
			break
		}
		for id := range idx.byToken[tok] {
			matched[id] = struct{}{}
		}
	}
	return matched
}

func (idx *Index) tokensMatching(match func(tok string) bool) idSet {
	matched := idSet{}
	for _, tok := range idx.sortedTokens {
		if !match(tok) {
			continue
		}
		for id := range idx.byToken[tok] {
			matched[id] = struct{}{}
		}
	}
	return matched
}

// All returns every indexed snippet id in store order.
func (idx *Index) All() []string {
	ids := make([]string, 0, len(idx.snippets))
	for id := range idx.snippets {
		ids = append(ids, id)
	}
	idx.sortBySeq(ids)
	return ids
}

// TagRefs reports how many snippets carry the tag.
func (idx *Index) TagRefs(tagID string) int {
	return len(idx.byTag[tagID])
}

// CategoryRefs reports how many snippets are filed under the category.
func (idx *Index) CategoryRefs(categoryID string) int {
	return len(idx.byCategory[categoryID])
}

func (idx *Index) refreshTokens() {
	if !idx.tokensDirty && idx.sortedTokens != nil {
		return
	}
	idx.sortedTokens = make([]string, 0, len(idx.byToken))
	for tok := range idx.byToken {
		idx.sortedTokens = append(idx.sortedTokens, tok)
	}
	slices.Sort(idx.sortedTokens)
	idx.tokensDirty = false
}

func (idx *Index) ordered(set idSet) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	idx.sortBySeq(ids)
	return ids
}

func (idx *Index) sortBySeq(ids []string) {
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Compare(idx.snippets[a].seq, idx.snippets[b].seq)
	})
}

func (idx *Index) compareSeq(id string, seq uint64) int {
	return cmp.Compare(idx.snippets[id].seq, seq)
}
