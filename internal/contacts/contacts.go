// Package contacts provides read-only access to the household contact
// directory. The session core resolves spoken contact names against it but
// never mutates it; management of the records belongs to the family screens
// outside this service.
package contacts

import (
	"context"
	"strings"

	"github.com/antzucaro/matchr"
)

// Contact is a single directory entry.
type Contact struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
	WhatsApp     string `json:"whatsapp"`
	Email        string `json:"email"`
}

// Directory lists contact records.
type Directory interface {
	List(ctx context.Context) ([]Contact, error)
}

// Resolver resolves a spoken or typed name to a directory entry using a
// case-insensitive substring match, returning the first hit in directory
// order. An optional phonetic fallback catches voice-transcription mangling
// of names.
type Resolver struct {
	dir   Directory
	fuzzy bool
}

// ResolverOption is a functional option for Resolver.
type ResolverOption func(*Resolver)

// WithFuzzyFallback enables a Jaro-Winkler fallback pass when the substring
// match finds nothing. Off by default so lookup behavior stays exact.
func WithFuzzyFallback(enabled bool) ResolverOption {
	return func(r *Resolver) { r.fuzzy = enabled }
}

// NewResolver creates a Resolver over the given directory.
func NewResolver(dir Directory, opts ...ResolverOption) *Resolver {
	r := &Resolver{dir: dir}
	for _, o := range opts {
		o(r)
	}
	return r
}

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a fallback hit.
const fuzzyThreshold = 0.88

// Lookup resolves name to a contact. The boolean is false when no entry
// matches.
func (r *Resolver) Lookup(ctx context.Context, name string) (Contact, bool, error) {
	list, err := r.dir.List(ctx)
	if err != nil {
		return Contact{}, false, err
	}

	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return Contact{}, false, nil
	}

	for _, c := range list {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			return c, true, nil
		}
	}

	if r.fuzzy {
		best := -1
		bestScore := fuzzyThreshold
		for i, c := range list {
			score := matchr.JaroWinkler(needle, strings.ToLower(c.Name), true)
			if score >= bestScore {
				best = i
				bestScore = score
			}
		}
		if best >= 0 {
			return list[best], true, nil
		}
	}

	return Contact{}, false, nil
}
