// Package hints supplies optional rename and derive relationships for
// transforms from sources other than the transform's explicit declaration,
// such as static analysis of its SQL.
//
// Hints never decide correctness: a provider that cannot analyze its input
// returns an error and the caller degrades to empty maps.
package hints

import (
	"context"
	"errors"
	"maps"
	"slices"
)

// Hints holds inferred column relationships of one transform.
type Hints struct {
	// Rename maps an input column to the output column it is renamed to.
	Rename map[string]string
	// Derives maps an output column to the input columns it is computed from.
	Derives map[string][]string
	// Tags label the transform, e.g. "aggregate" or "window".
	Tags []string
}

// Empty reports whether h carries no relationship and no tag.
func (h Hints) Empty() bool {
	return len(h.Rename) == 0 && len(h.Derives) == 0 && len(h.Tags) == 0
}

// Merge returns the union of h and other. Entries of other override entries
// of h with the same key. Renames merge with renames and derives with
// derives; tags are deduplicated in order of first appearance.
func (h Hints) Merge(other Hints) Hints {
	out := Hints{
		Rename:  make(map[string]string, len(h.Rename)+len(other.Rename)),
		Derives: make(map[string][]string, len(h.Derives)+len(other.Derives)),
	}
	for _, tag := range slices.Concat(h.Tags, other.Tags) {
		if !slices.Contains(out.Tags, tag) {
			out.Tags = append(out.Tags, tag)
		}
	}
	maps.Copy(out.Rename, h.Rename)
	maps.Copy(out.Rename, other.Rename)
	for k, v := range h.Derives {
		out.Derives[k] = slices.Clone(v)
	}
	for k, v := range other.Derives {
		out.Derives[k] = slices.Clone(v)
	}
	return out
}

// Request describes the transform a provider analyzes.
type Request struct {
	// Source is the transform's source text, such as its SQL.
	Source string
	// Input lists the columns of the transform's input frame, if known.
	Input []string
}

// Provider infers hints for a transform.
type Provider interface {
	Analyze(ctx context.Context, req Request) (Hints, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (Hints, error)

// Analyze calls f.
func (f ProviderFunc) Analyze(ctx context.Context, req Request) (Hints, error) {
	return f(ctx, req)
}

// Nop returns no hints.
type Nop struct{}

// Analyze implements Provider.
func (Nop) Analyze(context.Context, Request) (Hints, error) {
	return Hints{}, nil
}

// Static returns the same hints for every request.
type Static Hints

// Analyze implements Provider.
func (s Static) Analyze(context.Context, Request) (Hints, error) {
	return Hints{}.Merge(Hints(s)), nil
}

// Chain queries providers in order and merges their hints; later providers
// win on conflicting keys. A failing provider is skipped and its error is
// joined into the returned error alongside the hints of the others.
type Chain []Provider

// Analyze implements Provider.
func (c Chain) Analyze(ctx context.Context, req Request) (Hints, error) {
	var out Hints
	var errs []error
	for _, p := range c {
		h, err := p.Analyze(ctx, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = out.Merge(h)
	}
	return out, errors.Join(errs...)
}
