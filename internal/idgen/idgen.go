// Package idgen issues entity identifiers.
//
// ID FORMAT:
// Every id is "<prefix>_<token>", where the prefix names the entity kind
// (snp, cat, tag) so a stray id in a log line or a corrupt file is
// self-describing. The token comes from a pluggable Generator:
//
//   - xid (default): 20 chars, URL-safe, sortable by creation time
//   - uuid: RFC 4122 v4, for users who want conventional ids
//
// UNIQUENESS:
// An Allocator remembers every id it has issued plus every id reserved from a
// loaded file, and never hands any of them out again, even after the entity is
// deleted. The generators are already collision-resistant; the issued set turns
// "practically unique" into "guaranteed for this store's lifetime".
package idgen

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/xid"
)

// Kind is an entity type with its own id space.
type Kind string

const (
	KindSnippet  Kind = "snp"
	KindCategory Kind = "cat"
	KindTag      Kind = "tag"
)

// Generator produces a random token. It must be safe for concurrent use.
type Generator func() string

// XID is the default token generator.
func XID() string { return xid.New().String() }

// UUID generates RFC 4122 version 4 tokens.
func UUID() string { return uuid.NewString() }

// GeneratorFor maps a configured scheme name to its generator.
func GeneratorFor(scheme string) (Generator, error) {
	switch strings.ToLower(scheme) {
	case "", "xid":
		return XID, nil
	case "uuid":
		return UUID, nil
	default:
		return nil, fmt.Errorf("idgen: unknown id scheme %q", scheme)
	}
}

// maxAttempts bounds regeneration after a collision with an issued id.
const maxAttempts = 64

// Allocator issues ids that are unique per kind for its whole lifetime.
type Allocator struct {
	mu     sync.Mutex
	gen    Generator
	issued map[Kind]map[string]struct{}
}

// New returns an Allocator using gen, or xid when gen is nil.
func New(gen Generator) *Allocator {
	if gen == nil {
		gen = XID
	}
	return &Allocator{
		gen:    gen,
		issued: make(map[Kind]map[string]struct{}),
	}
}

// Allocate returns a fresh id for kind. It panics if the generator keeps
// returning ids that were already issued, which only happens with a broken
// generator.
func (a *Allocator) Allocate(kind Kind) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	set := a.set(kind)
	for range maxAttempts {
		id := string(kind) + "_" + a.gen()
		if _, taken := set[id]; !taken {
			set[id] = struct{}{}
			return id
		}
	}
	panic(fmt.Sprintf("idgen: generator exhausted for kind %s", kind))
}

// Reserve marks ids loaded from disk as issued so Allocate never repeats them.
func (a *Allocator) Reserve(kind Kind, ids ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	set := a.set(kind)
	for _, id := range ids {
		set[id] = struct{}{}
	}
}

// Issued reports whether id has been allocated or reserved for kind.
func (a *Allocator) Issued(kind Kind, id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.issued[kind][id]
	return ok
}

func (a *Allocator) set(kind Kind) map[string]struct{} {
	set, ok := a.issued[kind]
	if !ok {
		set = make(map[string]struct{})
		a.issued[kind] = set
	}
	return set
}
