// Package assembler gathers the persistent facets of a character into a
// typed snapshot according to a scope's query plan.
package assembler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/jwebster45206/combat-engine/pkg/character"
)

// Assembler builds character snapshots from a facet reader.
type Assembler struct {
	reader character.FacetReader
	logger *slog.Logger
}

func New(reader character.FacetReader, logger *slog.Logger) *Assembler {
	return &Assembler{reader: reader, logger: logger}
}

// Assemble loads the facets of the scope's plan concurrently. If any facet
// fails the outstanding fetches are cancelled and no snapshot is returned.
func (a *Assembler) Assemble(ctx context.Context, charID string, scope character.Scope) (*character.Snapshot, error) {
	if charID == "" {
		return nil, errs.Validation("char_id is required")
	}
	start := time.Now()
	plan := character.PlanFor(scope)
	snap := &character.Snapshot{
		CharID: charID,
		Scope:  character.Resolve(scope),
		Loaded: make(map[character.Facet]bool, len(plan)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		name, err := a.reader.Name(gctx, charID)
		if err != nil {
			return facetError(charID, "name", err)
		}
		mu.Lock()
		snap.Name = name
		mu.Unlock()
		return nil
	})

	for _, f := range plan {
		g.Go(func() error {
			if err := a.load(gctx, &mu, snap, f); err != nil {
				return facetError(charID, string(f), err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		a.logger.Warn("Assembly failed",
			"char_id", charID,
			"scope", snap.Scope,
			"facet", errs.GetMetadata(err)["facet"],
			"error", err,
		)
		return nil, err
	}

	a.logger.Debug("Snapshot assembled",
		"char_id", charID,
		"scope", snap.Scope,
		"facets", len(plan),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return snap, nil
}

func (a *Assembler) load(ctx context.Context, mu *sync.Mutex, snap *character.Snapshot, f character.Facet) error {
	var apply func()
	switch f {
	case character.FacetAttributes:
		v, err := a.reader.Attributes(ctx, snap.CharID)
		if err != nil {
			return err
		}
		apply = func() { snap.Attributes = v }
	case character.FacetInventory:
		v, err := a.reader.Inventory(ctx, snap.CharID)
		if err != nil {
			return err
		}
		if v == nil {
			v = []character.InventorySlot{}
		}
		apply = func() { snap.Inventory = v }
	case character.FacetSkills:
		v, err := a.reader.Skills(ctx, snap.CharID)
		if err != nil {
			return err
		}
		apply = func() { snap.Skills = v }
	case character.FacetVitals:
		v, err := a.reader.Vitals(ctx, snap.CharID)
		if err != nil {
			return err
		}
		apply = func() { snap.Vitals = v }
	case character.FacetSymbiote:
		v, err := a.reader.Symbiote(ctx, snap.CharID)
		if err != nil {
			return err
		}
		apply = func() { snap.Symbiote = v }
	case character.FacetWallet:
		v, err := a.reader.Wallet(ctx, snap.CharID)
		if err != nil {
			return err
		}
		apply = func() { snap.Wallet = v }
	default:
		return errs.Internal(nil, "unknown facet %q", f)
	}

	mu.Lock()
	defer mu.Unlock()
	apply()
	snap.Loaded[f] = true
	return nil
}

// facetError keeps NOT_FOUND for unknown characters and reports everything
// else as UPSTREAM_UNAVAILABLE naming the facet.
func facetError(charID, facet string, err error) error {
	if errs.IsCode(err, errs.CodeNotFound) {
		return errs.NotFound("character %s: %s not found", charID, facet).With("facet", facet).With("char_id", charID)
	}
	return errs.Upstream(err, "facet %s unavailable", facet).With("facet", facet).With("char_id", charID)
}
