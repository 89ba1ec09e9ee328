package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sjafferali/stashhog-sub000/internal/catalogclient"
	"github.com/sjafferali/stashhog-sub000/internal/metrics"
	"github.com/sjafferali/stashhog-sub000/internal/model"
	"github.com/sjafferali/stashhog-sub000/internal/storage"
)

// entitySyncOutcome tallies what syncEntities did, folded into the run's
// overall SyncResult counters.
type entitySyncOutcome struct {
	created int
	updated int
	failed  int
	errors  []model.SyncEntityError
}

func (o *entitySyncOutcome) merge(other entitySyncOutcome) {
	o.created += other.created
	o.updated += other.updated
	o.failed += other.failed
	o.errors = append(o.errors, other.errors...)
}

// recordEntityMirror reports one entity kind's tally against EntitiesMirrored.
// reg may be nil.
func recordEntityMirror(reg *metrics.Registry, entityType string, sub entitySyncOutcome) {
	if reg == nil {
		return
	}
	if sub.created > 0 {
		reg.EntitiesMirrored.WithLabelValues(entityType, "created").Add(float64(sub.created))
	}
	if sub.updated > 0 {
		reg.EntitiesMirrored.WithLabelValues(entityType, "updated").Add(float64(sub.updated))
	}
	if sub.failed > 0 {
		reg.EntitiesMirrored.WithLabelValues(entityType, "failed").Add(float64(sub.failed))
	}
}

// syncEntities fully re-pulls performers, tags, and studios from Catalog.
// CatalogClient exposes no updated-since filter for these entity kinds
// (only scenes support GetScenesSince), so unlike scene sync this never
// branches on Mode — every run refreshes the complete entity mirror
// (documented judgment call, §4.8). The three entity kinds are independent
// Catalog round trips, so they run concurrently and fold their separate
// tallies into one outcome.
func syncEntities(ctx context.Context, catalog *catalogclient.Client, entities *storage.EntityRepository, mirror *entityMirror, reg *metrics.Registry) (entitySyncOutcome, error) {
	now := time.Now()
	var mu sync.Mutex
	var out entitySyncOutcome

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		performers, err := catalog.GetAllPerformers(gctx)
		if err != nil {
			return fmt.Errorf("fetch performers: %w", err)
		}
		var sub entitySyncOutcome
		for _, p := range performers {
			p := p
			p.LastSynced = now
			if _, existed := mirror.performers[p.ID]; existed {
				sub.updated++
			} else {
				sub.created++
			}
			if err := entities.UpsertPerformer(gctx, &p); err != nil {
				sub.failed++
				sub.errors = append(sub.errors, model.SyncEntityError{EntityID: p.ID, Message: err.Error()})
				continue
			}
			mirror.performers[p.ID] = p
		}
		recordEntityMirror(reg, "performer", sub)
		mu.Lock()
		out.merge(sub)
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		tags, err := catalog.GetAllTags(gctx)
		if err != nil {
			return fmt.Errorf("fetch tags: %w", err)
		}
		var sub entitySyncOutcome
		for _, t := range tags {
			t := t
			t.LastSynced = now
			if _, existed := mirror.tags[t.ID]; existed {
				sub.updated++
			} else {
				sub.created++
			}
			if err := entities.UpsertTag(gctx, &t); err != nil {
				sub.failed++
				sub.errors = append(sub.errors, model.SyncEntityError{EntityID: t.ID, Message: err.Error()})
				continue
			}
			mirror.tags[t.ID] = t
		}
		recordEntityMirror(reg, "tag", sub)
		mu.Lock()
		out.merge(sub)
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		studios, err := catalog.GetAllStudios(gctx)
		if err != nil {
			return fmt.Errorf("fetch studios: %w", err)
		}
		var sub entitySyncOutcome
		for _, s := range studios {
			s := s
			s.LastSynced = now
			if _, existed := mirror.studios[s.ID]; existed {
				sub.updated++
			} else {
				sub.created++
			}
			if err := entities.UpsertStudio(gctx, &s); err != nil {
				sub.failed++
				sub.errors = append(sub.errors, model.SyncEntityError{EntityID: s.ID, Message: err.Error()})
				continue
			}
			mirror.studios[s.ID] = s
		}
		recordEntityMirror(reg, "studio", sub)
		mu.Lock()
		out.merge(sub)
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
