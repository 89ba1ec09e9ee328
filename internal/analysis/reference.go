package analysis

import (
	"context"

	"github.com/sjafferali/stashhog-sub000/internal/detectors"
	"github.com/sjafferali/stashhog-sub000/internal/entitycache"
)

const (
	cacheKeyStudios    = "analysis:studios"
	cacheKeyPerformers = "analysis:performers"
	cacheKeyTags       = "analysis:tags"
)

// referenceData is the mirror-DB snapshot detectors match candidates
// against for one Analyze run (§4.6 step 1).
type referenceData struct {
	studioNames       []string
	studioNameByID    map[string]string
	knownPerformers   []detectors.KnownPerformer
	performerNameByID map[string]string
	availableTags     []string
	tagNameByID       map[string]string
}

// loadReference refreshes the EntityCache from the mirror DB and returns the
// reference data AnalysisEngine's detectors match against. Always reloads
// from the DB rather than trusting a cache hit: a stale performer/tag/studio
// list would make Detect miss or propose changes that fail to apply later
// (§4.6 step 1).
func (e *Engine) loadReference(ctx context.Context) (referenceData, error) {
	studios, err := e.entities.ListStudios(ctx)
	if err != nil {
		return referenceData{}, err
	}
	performers, err := e.entities.ListPerformers(ctx)
	if err != nil {
		return referenceData{}, err
	}
	tags, err := e.entities.ListTags(ctx)
	if err != nil {
		return referenceData{}, err
	}

	if e.cache != nil {
		e.cache.Set(cacheKeyStudios, studios, entitycache.ListingTTL)
		e.cache.Set(cacheKeyPerformers, performers, entitycache.ListingTTL)
		e.cache.Set(cacheKeyTags, tags, entitycache.ListingTTL)
	}

	ref := referenceData{
		studioNameByID:    make(map[string]string, len(studios)),
		performerNameByID: make(map[string]string, len(performers)),
		tagNameByID:       make(map[string]string, len(tags)),
	}
	for _, s := range studios {
		ref.studioNames = append(ref.studioNames, s.Name)
		ref.studioNameByID[s.ID] = s.Name
	}
	for _, p := range performers {
		ref.knownPerformers = append(ref.knownPerformers, detectors.KnownPerformer{ID: p.ID, Name: p.Name, Aliases: p.Aliases})
		ref.performerNameByID[p.ID] = p.Name
	}
	for _, t := range tags {
		ref.availableTags = append(ref.availableTags, t.Name)
		ref.tagNameByID[t.ID] = t.Name
	}
	return ref, nil
}
