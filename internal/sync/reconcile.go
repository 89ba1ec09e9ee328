package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sjafferali/stashhog-sub000/internal/model"
	"github.com/sjafferali/stashhog-sub000/internal/storage"
)

// entityMirror is the in-memory snapshot of every performer/tag/studio
// known locally, built once per run and consulted while reconciling a
// batch of scenes instead of round-tripping the DB per relationship
// (§4.8: "processes scenes against in-memory maps").
type entityMirror struct {
	performers map[string]model.Performer
	tags       map[string]model.Tag
	studios    map[string]model.Studio
}

func loadEntityMirror(ctx context.Context, entities *storage.EntityRepository) (*entityMirror, error) {
	performers, err := entities.ListPerformers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load performer mirror: %w", err)
	}
	tags, err := entities.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tag mirror: %w", err)
	}
	studios, err := entities.ListStudios(ctx)
	if err != nil {
		return nil, fmt.Errorf("load studio mirror: %w", err)
	}

	m := &entityMirror{
		performers: make(map[string]model.Performer, len(performers)),
		tags:       make(map[string]model.Tag, len(tags)),
		studios:    make(map[string]model.Studio, len(studios)),
	}
	for _, p := range performers {
		m.performers[p.ID] = p
	}
	for _, t := range tags {
		m.tags[t.ID] = t
	}
	for _, s := range studios {
		m.studios[s.ID] = s
	}
	return m, nil
}

// ensureMinimalEntities pre-fetches (from the mirror) every
// performer/tag/studio ID referenced across a batch of remote scenes and
// creates a name-less stub row for any ID missing from the local mirror,
// so the scene's foreign keys never dangle (§4.8 step 3, batch prefetch).
func ensureMinimalEntities(ctx context.Context, entities *storage.EntityRepository, mirror *entityMirror, remoteScenes []model.Scene) error {
	now := time.Now()

	for _, s := range remoteScenes {
		if s.StudioID != nil {
			if _, ok := mirror.studios[*s.StudioID]; !ok {
				stub := model.Studio{ID: *s.StudioID, LastSynced: now}
				if err := entities.UpsertStudio(ctx, &stub); err != nil {
					return fmt.Errorf("create minimal studio %s: %w", *s.StudioID, err)
				}
				mirror.studios[stub.ID] = stub
			}
		}
		for _, id := range s.PerformerIDs {
			if _, ok := mirror.performers[id]; !ok {
				stub := model.Performer{ID: id, LastSynced: now}
				if err := entities.UpsertPerformer(ctx, &stub); err != nil {
					return fmt.Errorf("create minimal performer %s: %w", id, err)
				}
				mirror.performers[stub.ID] = stub
			}
		}
		for _, id := range s.TagIDs {
			if _, ok := mirror.tags[id]; !ok {
				stub := model.Tag{ID: id, LastSynced: now}
				if err := entities.UpsertTag(ctx, &stub); err != nil {
					return fmt.Errorf("create minimal tag %s: %w", id, err)
				}
				mirror.tags[stub.ID] = stub
			}
		}
		for _, mk := range s.Markers {
			if mk.PrimaryTagID != "" {
				if _, ok := mirror.tags[mk.PrimaryTagID]; !ok {
					stub := model.Tag{ID: mk.PrimaryTagID, LastSynced: now}
					if err := entities.UpsertTag(ctx, &stub); err != nil {
						return fmt.Errorf("create minimal tag %s: %w", mk.PrimaryTagID, err)
					}
					mirror.tags[stub.ID] = stub
				}
			}
			for _, id := range mk.TagIDs {
				if _, ok := mirror.tags[id]; !ok {
					stub := model.Tag{ID: id, LastSynced: now}
					if err := entities.UpsertTag(ctx, &stub); err != nil {
						return fmt.Errorf("create minimal tag %s: %w", id, err)
					}
					mirror.tags[stub.ID] = stub
				}
			}
		}
	}
	return nil
}

// reconcileFiles assigns a deterministic ID to any remote file missing
// one (so repeated syncs of the same physical file converge on the same
// row instead of duplicating it), and preserves whichever file is
// currently primary locally unless none of the surviving files match it,
// in which case the first listed file becomes primary (§4.8).
func reconcileFiles(local *model.Scene, remoteFiles []model.SceneFile) []model.SceneFile {
	var currentPrimaryID string
	if local != nil {
		if pf := local.PrimaryFile(); pf != nil {
			currentPrimaryID = pf.ID
		}
	}

	out := make([]model.SceneFile, len(remoteFiles))
	copy(out, remoteFiles)

	havePrimaryMatch := false
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = deterministicFileID(out[i].SceneID, out[i].Path)
		}
		out[i].IsPrimary = false
		if currentPrimaryID != "" && out[i].ID == currentPrimaryID {
			havePrimaryMatch = true
		}
	}

	if havePrimaryMatch {
		for i := range out {
			if out[i].ID == currentPrimaryID {
				out[i].IsPrimary = true
				break
			}
		}
	} else if len(out) > 0 {
		out[0].IsPrimary = true
	}
	return out
}

// deterministicFileID hashes {scene_id, path} into a stable hex id for a
// remote file the Catalog returned with no id of its own (§4.8).
func deterministicFileID(sceneID, path string) string {
	h := sha256.Sum256([]byte(sceneID + "\x00" + path))
	return hex.EncodeToString(h[:])
}

// reconcileMarkers drops any remote marker lacking a primary tag; the
// remaining markers fully replace the local set via SceneRepository.Upsert
// (§4.8: upsert by id, delete markers absent from the remote list).
func reconcileMarkers(remoteMarkers []model.SceneMarker) []model.SceneMarker {
	out := make([]model.SceneMarker, 0, len(remoteMarkers))
	for _, m := range remoteMarkers {
		if m.Valid() {
			out = append(out, m)
		}
	}
	return out
}
