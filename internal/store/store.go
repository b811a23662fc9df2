// Package store is the authoritative in-memory collection of snippets,
// categories and tags.
//
// TRANSACTIONS:
// Every mutation runs against a copy of the current state. The copy is
// changed, checked against the reference invariants, and only then swapped in
// as the new current state. If anything fails along the way the copy is simply
// dropped, so a failed operation never leaves a partial change behind.
//
// Because committed state is never written to again, a Commit handed to a hook
// can be turned into a Snapshot later, from any goroutine, and still describe
// exactly the state that was committed.
//
// INDEX:
// The query index is updated inside the commit, before the lock is released.
// Any read that follows a successful mutation sees its effect.
package store

import (
	"cmp"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/idgen"
	"github.com/sakif/snippet-organizer/internal/index"
	"github.com/sakif/snippet-organizer/internal/model"
)

// Options configures a Store. The zero value is usable.
type Options struct {
	// IDs issues entity ids. Defaults to an xid allocator.
	IDs *idgen.Allocator
	// Now is the clock used for timestamps. Defaults to time.Now().UTC().
	Now func() time.Time
	// KeepUnusedTags disables tag garbage collection: by default a tag is
	// deleted as soon as the last snippet carrying it is deleted or untagged.
	KeepUnusedTags bool
}

// CommitHook is called after every successful mutation, outside the store lock.
type CommitHook func(Commit)

// Commit identifies one committed state.
type Commit struct {
	Seq   uint64
	state *state
}

// Snapshot materializes the committed state. It is safe to call from any
// goroutine at any later time.
func (c Commit) Snapshot() model.Snapshot {
	return c.state.snapshot()
}

// Store holds the live state and its index.
type Store struct {
	mu      sync.RWMutex
	state   *state
	idx     *index.Index
	ids     *idgen.Allocator
	nowFn   func() time.Time
	keepTag bool
	commits uint64
	hooks   []CommitHook
}

// New returns an empty store.
func New(opts Options) *Store {
	if opts.IDs == nil {
		opts.IDs = idgen.New(nil)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		state:   newState(),
		idx:     index.New(),
		ids:     opts.IDs,
		nowFn:   opts.Now,
		keepTag: opts.KeepUnusedTags,
	}
}

// Load replaces the store contents with snap after validating it. Loaded ids
// are reserved so they are never issued again. Hooks are not fired.
func (s *Store) Load(snap model.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	st := newState()
	for _, c := range snap.Categories {
		st.categories[c.ID] = c
		st.categoryNames[model.NameKey(c.Name)] = c.ID
		s.ids.Reserve(idgen.KindCategory, c.ID)
	}
	for _, t := range snap.Tags {
		st.tags[t.ID] = t
		st.tagLabels[model.NameKey(t.Label)] = t.ID
		s.ids.Reserve(idgen.KindTag, t.ID)
	}
	for _, sn := range snap.Snippets {
		st.nextSeq++
		sn = sn.Clone()
		sn.TagIDs = model.TagSet(sn.TagIDs)
		sn.Seq = st.nextSeq
		st.snippets[sn.ID] = sn
		s.ids.Reserve(idgen.KindSnippet, sn.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.idx = index.Build(st.snapshot())
	return nil
}

// OnCommit registers a hook fired after every committed mutation.
func (s *Store) OnCommit(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Snapshot returns the current state.
func (s *Store) Snapshot() model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.snapshot()
}

// Head returns the current commit.
func (s *Store) Head() Commit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Commit{Seq: s.commits, state: s.state}
}

// state is one immutable version of the store contents once committed.
type state struct {
	snippets      map[string]model.Snippet
	categories    map[string]model.Category
	tags          map[string]model.Tag
	categoryNames map[string]string // NameKey → category id
	tagLabels     map[string]string // NameKey → tag id
	nextSeq       uint64
}

func newState() *state {
	return &state{
		snippets:      make(map[string]model.Snippet),
		categories:    make(map[string]model.Category),
		tags:          make(map[string]model.Tag),
		categoryNames: make(map[string]string),
		tagLabels:     make(map[string]string),
	}
}

// clone copies the maps. Snippet values share their TagIDs slices with the
// original, so a transaction must Clone a snippet before changing its tags.
func (st *state) clone() *state {
	return &state{
		snippets:      maps.Clone(st.snippets),
		categories:    maps.Clone(st.categories),
		tags:          maps.Clone(st.tags),
		categoryNames: maps.Clone(st.categoryNames),
		tagLabels:     maps.Clone(st.tagLabels),
		nextSeq:       st.nextSeq,
	}
}

func (st *state) snapshot() model.Snapshot {
	snap := model.Snapshot{
		Version:    model.SnapshotVersion,
		Categories: make([]model.Category, 0, len(st.categories)),
		Tags:       make([]model.Tag, 0, len(st.tags)),
		Snippets:   st.orderedSnippets(func(model.Snippet) bool { return true }),
	}
	for _, c := range st.categories {
		snap.Categories = append(snap.Categories, c)
	}
	slices.SortFunc(snap.Categories, func(a, b model.Category) int { return cmp.Compare(a.ID, b.ID) })
	for _, t := range st.tags {
		snap.Tags = append(snap.Tags, t)
	}
	slices.SortFunc(snap.Tags, func(a, b model.Tag) int { return cmp.Compare(a.ID, b.ID) })
	return snap
}

func (st *state) orderedSnippets(keep func(model.Snippet) bool) []model.Snippet {
	out := make([]model.Snippet, 0, len(st.snippets))
	for _, sn := range st.snippets {
		if keep(sn) {
			out = append(out, sn.Clone())
		}
	}
	slices.SortFunc(out, func(a, b model.Snippet) int { return cmp.Compare(a.Seq, b.Seq) })
	return out
}

// transaction is a working copy plus the record of what it touched.
type transaction struct {
	store *Store
	state *state
	now   time.Time

	putSnippets       map[string]struct{}
	removedSnippets   map[string]struct{}
	addedCategories   map[string]struct{}
	removedCategories map[string]struct{}
	addedTags         map[string]struct{}
	removedTags       map[string]struct{}

	// gcCandidates are tags that lost a reference in this transaction.
	gcCandidates map[string]struct{}
}

// update runs fn in a transaction and commits it if fn and the reference
// checks succeed.
func (s *Store) update(fn func(tx *transaction) error) error {
	s.mu.Lock()

	tx := &transaction{
		store:             s,
		state:             s.state.clone(),
		now:               s.nowFn(),
		putSnippets:       map[string]struct{}{},
		removedSnippets:   map[string]struct{}{},
		addedCategories:   map[string]struct{}{},
		removedCategories: map[string]struct{}{},
		addedTags:         map[string]struct{}{},
		removedTags:       map[string]struct{}{},
		gcCandidates:      map[string]struct{}{},
	}

	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.keepTag {
		tx.collectTags()
	}
	if err := tx.checkReferences(); err != nil {
		s.mu.Unlock()
		return err
	}

	s.state = tx.state
	s.commits++
	tx.applyToIndex(s.idx)

	commit := Commit{Seq: s.commits, state: s.state}
	hooks := slices.Clone(s.hooks)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(commit)
	}
	return nil
}

func (tx *transaction) putSnippet(sn model.Snippet) {
	tx.state.snippets[sn.ID] = sn
	tx.putSnippets[sn.ID] = struct{}{}
}

func (tx *transaction) removeSnippet(id string) {
	sn, ok := tx.state.snippets[id]
	if !ok {
		return
	}
	for _, tagID := range sn.TagIDs {
		tx.gcCandidates[tagID] = struct{}{}
	}
	delete(tx.state.snippets, id)
	delete(tx.putSnippets, id)
	tx.removedSnippets[id] = struct{}{}
}

func (tx *transaction) removeTag(id string) {
	t, ok := tx.state.tags[id]
	if !ok {
		return
	}
	delete(tx.state.tags, id)
	delete(tx.state.tagLabels, model.NameKey(t.Label))
	delete(tx.addedTags, id)
	tx.removedTags[id] = struct{}{}
}

// tagRefs counts references to tagID in the working state. It starts from the
// committed index and corrects for the snippets this transaction touched.
func (tx *transaction) tagRefs(tagID string) int {
	base := tx.store.state
	n := tx.store.idx.TagRefs(tagID)
	touched := func(id string) {
		if old, ok := base.snippets[id]; ok && old.HasTag(tagID) {
			n--
		}
		if cur, ok := tx.state.snippets[id]; ok && cur.HasTag(tagID) {
			n++
		}
	}
	for id := range tx.putSnippets {
		touched(id)
	}
	for id := range tx.removedSnippets {
		touched(id)
	}
	return n
}

// collectTags deletes tags whose last reference went away in this transaction.
func (tx *transaction) collectTags() {
	for tagID := range tx.gcCandidates {
		if _, ok := tx.state.tags[tagID]; !ok {
			continue
		}
		if tx.tagRefs(tagID) == 0 {
			tx.removeTag(tagID)
		}
	}
}

// checkReferences verifies every snippet written by the transaction points at
// categories and tags that exist in the working state.
func (tx *transaction) checkReferences() error {
	for id := range tx.putSnippets {
		sn := tx.state.snippets[id]
		if sn.CategoryID != "" {
			if _, ok := tx.state.categories[sn.CategoryID]; !ok {
				return apperror.Reference("category", sn.CategoryID)
			}
		}
		for _, tagID := range sn.TagIDs {
			if _, ok := tx.state.tags[tagID]; !ok {
				return apperror.Reference("tag", tagID)
			}
		}
	}
	return nil
}

func (tx *transaction) applyToIndex(idx *index.Index) {
	for id := range tx.addedCategories {
		idx.AddCategory(id)
	}
	for id := range tx.addedTags {
		idx.AddTag(id)
	}
	for id := range tx.removedSnippets {
		idx.RemoveSnippet(id)
	}
	for id := range tx.putSnippets {
		idx.PutSnippet(tx.state.snippets[id])
	}
	for id := range tx.removedCategories {
		idx.RemoveCategory(id)
	}
	for id := range tx.removedTags {
		idx.RemoveTag(id)
	}
}
