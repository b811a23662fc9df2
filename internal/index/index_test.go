package index

import (
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/model"
)

func snippet(id string, seq uint64, category string, tags ...string) model.Snippet {
	return model.Snippet{ID: id, Seq: seq, Content: "content of " + id, CategoryID: category, TagIDs: model.TagSet(tags)}
}

func TestFindByCategory_OrderedBySeq(t *testing.T) {
	idx := New()
	idx.AddCategory("cat_work")

	// Put out of order; the category list must still follow Seq.
	idx.PutSnippet(snippet("snp_c", 3, "cat_work"))
	idx.PutSnippet(snippet("snp_a", 1, "cat_work"))
	idx.PutSnippet(snippet("snp_b", 2, "cat_work"))

	ids, err := idx.FindByCategory("cat_work")
	require.NoError(t, err)
	assert.Equal(t, []string{"snp_a", "snp_b", "snp_c"}, ids)
}

func TestFindByCategory_Unknown(t *testing.T) {
	idx := New()

	_, err := idx.FindByCategory("cat_nope")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = idx.FindByTag("tag_nope")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestFindByCategory_EmptyCategory(t *testing.T) {
	idx := New()
	idx.AddCategory("cat_empty")

	ids, err := idx.FindByCategory("cat_empty")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestPutSnippet_MovesBetweenCategories(t *testing.T) {
	idx := New()
	idx.AddCategory("cat_a")
	idx.AddCategory("cat_b")

	idx.PutSnippet(snippet("snp_1", 1, "cat_a"))
	idx.PutSnippet(snippet("snp_1", 1, "cat_b"))

	a, _ := idx.FindByCategory("cat_a")
	b, _ := idx.FindByCategory("cat_b")
	assert.Empty(t, a)
	assert.Equal(t, []string{"snp_1"}, b)
}

func TestFindByTag(t *testing.T) {
	idx := New()
	idx.AddTag("tag_urgent")
	idx.PutSnippet(snippet("snp_2", 2, "", "tag_urgent"))
	idx.PutSnippet(snippet("snp_1", 1, "", "tag_urgent"))
	idx.PutSnippet(snippet("snp_3", 3, ""))

	ids, err := idx.FindByTag("tag_urgent")
	require.NoError(t, err)
	assert.Equal(t, []string{"snp_1", "snp_2"}, ids)
	assert.Equal(t, 2, idx.TagRefs("tag_urgent"))

	idx.RemoveSnippet("snp_1")
	assert.Equal(t, 1, idx.TagRefs("tag_urgent"))
}

func TestSearch(t *testing.T) {
	idx := New()
	idx.PutSnippet(model.Snippet{ID: "snp_1", Seq: 1, Label: "Meeting Notes", Content: "Agenda and action items"})
	idx.PutSnippet(model.Snippet{ID: "snp_2", Seq: 2, Content: "Buy milk, eggs"})
	idx.PutSnippet(model.Snippet{ID: "snp_3", Seq: 3, Content: "Meet Bob at noon"})
	idx.PutSnippet(model.Snippet{ID: "snp_4", Seq: 4, Label: "build", Content: "Compile with c++ -O2, see internal.example/docs"})

	tests := []struct {
		query string
		want  []string
	}{
		{query: "", want: []string{"snp_1", "snp_2", "snp_3", "snp_4"}},
		{query: "meet", want: []string{"snp_1", "snp_3"}},
		{query: "MEETING", want: []string{"snp_1"}},
		{query: "milk", want: []string{"snp_2"}},
		{query: "zebra", want: []string{}},
		// Substring, not word prefix.
		{query: "eeting", want: []string{"snp_1"}},
		{query: "ilk, eg", want: []string{"snp_2"}},
		{query: "t bob", want: []string{"snp_3"}},
		// Words must appear together and in order.
		{query: "meet agenda", want: []string{}},
		{query: "eggs milk", want: []string{}},
		// Punctuation is matched literally.
		{query: "c++", want: []string{"snp_4"}},
		{query: "c--", want: []string{}},
		{query: "internal.example", want: []string{"snp_4"}},
		{query: "internal example", want: []string{}},
		{query: ", ", want: []string{"snp_2", "snp_4"}},
		{query: "  ,, ", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.query), func(t *testing.T) {
			assert.Equal(t, tt.want, idx.Search(tt.query))
		})
	}
}

func TestSearch_SeesUpdates(t *testing.T) {
	idx := New()
	idx.PutSnippet(model.Snippet{ID: "snp_1", Seq: 1, Content: "alpha"})
	assert.Equal(t, []string{"snp_1"}, idx.Search("alp"))
	assert.Equal(t, []string{"snp_1"}, idx.Search("pha"))

	idx.PutSnippet(model.Snippet{ID: "snp_1", Seq: 1, Content: "beta"})
	assert.Empty(t, idx.Search("alp"))
	assert.Equal(t, []string{"snp_1"}, idx.Search("eta"))

	idx.RemoveSnippet("snp_1")
	assert.Empty(t, idx.Search("eta"))
}

func TestSearch_MarkdownMatchesSourceAndVisibleText(t *testing.T) {
	idx := New()
	idx.PutSnippet(model.Snippet{
		ID:         "snp_1",
		Seq:        1,
		IsMarkdown: true,
		Content:    "# Title\n\nSee [the docs](https://internal.example/path) and **bold**   text.\n",
	})

	assert.Equal(t, []string{"snp_1"}, idx.Search("docs"))
	assert.Equal(t, []string{"snp_1"}, idx.Search("internal.example"), "raw source is searchable")
	assert.Equal(t, []string{"snp_1"}, idx.Search("**bold**"))
	assert.Equal(t, []string{"snp_1"}, idx.Search("see the docs and bold text"), "rendered text is searchable")
	assert.Empty(t, idx.Search("docs bold"))
}

// TestSearch_MatchesScan checks the candidate lookup against a plain scan
// over many generated snippets and queries cut from their text.
func TestSearch_MatchesScan(t *testing.T) {
	alphabet := []rune("ab .-Z\u00e9")
	rng := rand.New(rand.NewPCG(3, 11))
	randText := func(n int) string {
		out := make([]rune, n)
		for i := range out {
			out[i] = alphabet[rng.IntN(len(alphabet))]
		}
		return string(out)
	}

	idx := New()
	var texts []string
	for i := range 60 {
		s := model.Snippet{ID: fmt.Sprintf("snp_%02d", i), Seq: uint64(i + 1), Label: randText(4), Content: randText(12)}
		idx.PutSnippet(s)
		texts = append(texts, s.Label, s.Content)
	}
	scan := func(q string) []string {
		q = strings.ToLower(q)
		out := []string{}
		for i := range 60 {
			if strings.Contains(strings.ToLower(texts[2*i]), q) || strings.Contains(strings.ToLower(texts[2*i+1]), q) {
				out = append(out, fmt.Sprintf("snp_%02d", i))
			}
		}
		return out
	}

	for range 300 {
		src := []rune(texts[rng.IntN(len(texts))])
		from := rng.IntN(len(src))
		to := from + 1 + rng.IntN(len(src)-from)
		q := string(src[from:to])
		if rng.IntN(3) == 0 {
			q = randText(1 + rng.IntN(3))
		}
		assert.Equal(t, scan(q), idx.Search(q), "query %q", q)
	}
}

// view is a canonical, order-independent rendering of an index for comparison.
type view struct {
	Categories map[string][]string
	Tags       map[string][]string
	Tokens     map[string][]string
	All        []string
}

func snapshotView(idx *Index) view {
	v := view{
		Categories: map[string][]string{},
		Tags:       map[string][]string{},
		Tokens:     map[string][]string{},
		All:        idx.All(),
	}
	for id, ids := range idx.byCategory {
		v.Categories[id] = slices.Clone(ids)
	}
	for id, set := range idx.byTag {
		v.Tags[id] = idx.ordered(set)
	}
	for tok, set := range idx.byToken {
		v.Tokens[tok] = idx.ordered(set)
	}
	return v
}

// TestBuildMatchesIncremental drives random mutation histories through the
// incremental methods and checks that Build over the final state agrees.
func TestBuildMatchesIncremental(t *testing.T) {
	words := []string{"alpha", "beta", "gamma", "delta", "alphabet", "be"}

	for seed := range uint64(25) {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, 42))
			idx := New()

			cats := map[string]bool{}
			tags := map[string]bool{}
			live := map[string]model.Snippet{}
			var seq uint64

			pick := func(m map[string]bool) string {
				keys := slices.Sorted(maps.Keys(m))
				if len(keys) == 0 {
					return ""
				}
				return keys[rng.IntN(len(keys))]
			}
			liveIDs := func() []string {
				ids := make([]string, 0, len(live))
				for id := range live {
					ids = append(ids, id)
				}
				slices.Sort(ids)
				return ids
			}

			for step := range 200 {
				switch rng.IntN(7) {
				case 0:
					id := fmt.Sprintf("cat_%d", step)
					cats[id] = true
					idx.AddCategory(id)
				case 1:
					id := fmt.Sprintf("tag_%d", step)
					tags[id] = true
					idx.AddTag(id)
				case 2, 3:
					seq++
					s := model.Snippet{
						ID:         fmt.Sprintf("snp_%d", step),
						Seq:        seq,
						Content:    words[rng.IntN(len(words))] + " " + words[rng.IntN(len(words))],
						CategoryID: pick(cats),
						IsMarkdown: rng.IntN(2) == 0,
					}
					if tag := pick(tags); tag != "" {
						s.TagIDs = []string{tag}
					}
					live[s.ID] = s
					idx.PutSnippet(s)
				case 4:
					ids := liveIDs()
					if len(ids) == 0 {
						continue
					}
					s := live[ids[rng.IntN(len(ids))]]
					s.Content = words[rng.IntN(len(words))]
					s.CategoryID = pick(cats)
					live[s.ID] = s
					idx.PutSnippet(s)
				case 5:
					ids := liveIDs()
					if len(ids) == 0 {
						continue
					}
					id := ids[rng.IntN(len(ids))]
					delete(live, id)
					idx.RemoveSnippet(id)
				case 6:
					// Delete a category the way the store does: uncategorize
					// members first, then drop the category.
					cat := pick(cats)
					if cat == "" {
						continue
					}
					for _, id := range liveIDs() {
						if s := live[id]; s.CategoryID == cat {
							s.CategoryID = ""
							live[id] = s
							idx.PutSnippet(s)
						}
					}
					delete(cats, cat)
					idx.RemoveCategory(cat)
				}
			}

			snap := model.Snapshot{Version: model.SnapshotVersion}
			for id := range cats {
				snap.Categories = append(snap.Categories, model.Category{ID: id, Name: id})
			}
			for id := range tags {
				snap.Tags = append(snap.Tags, model.Tag{ID: id, Label: id})
			}
			for _, id := range liveIDs() {
				snap.Snippets = append(snap.Snippets, live[id])
			}

			assert.Equal(t, snapshotView(Build(snap)), snapshotView(idx))
		})
	}
}
