package catalogclient

import (
	"context"
	"fmt"
	"time"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

const scenesCachePrefix = "scenes:"
const entityCachePrefix = "entities:"

// GetScenes returns a page of scenes plus the total matching count (§4.1).
func (c *Client) GetScenes(ctx context.Context, page, perPage int, filter SceneFilter, sort SortOption) ([]model.Scene, int, error) {
	const query = `query GetScenes($page: Int!, $per_page: Int!, $filter: SceneFilter) {
		findScenes(filter: {page: $page, per_page: $per_page}, scene_filter: $filter) {
			count
			scenes { id title details url date rating100 organized created_at updated_at
				files { id path size width height duration frame_rate bit_rate video_codec fingerprints { type value } }
				performers { id name } tags { id name } studio { id name }
				markers { id seconds end_seconds title primary_tag { id } tags { id } }
			}
		}
	}`
	vars := map[string]any{
		"page":     page,
		"per_page": perPage,
		"filter":   filter,
	}

	var out struct {
		FindScenes struct {
			Count  int         `json:"count"`
			Scenes []wireScene `json:"scenes"`
		} `json:"findScenes"`
	}
	if err := c.execute(ctx, query, vars, &out); err != nil {
		return nil, 0, err
	}

	scenes := make([]model.Scene, 0, len(out.FindScenes.Scenes))
	for _, w := range out.FindScenes.Scenes {
		scenes = append(scenes, toModelScene(w))
	}
	return scenes, out.FindScenes.Count, nil
}

// GetScene fetches a single scene by ID, using EntityCache on a hit.
func (c *Client) GetScene(ctx context.Context, id string) (*model.Scene, error) {
	cacheKey := fmt.Sprintf("%sscene:%s", scenesCachePrefix, id)
	if c.cache != nil {
		if v, ok := c.cache.Get(cacheKey); ok {
			scene := v.(model.Scene)
			return &scene, nil
		}
	}

	const query = `query GetScene($id: ID!) {
		findScene(id: $id) { id title details url date rating100 organized created_at updated_at
			files { id path size width height duration frame_rate bit_rate video_codec fingerprints { type value } }
			performers { id name } tags { id name } studio { id name }
			markers { id seconds end_seconds title primary_tag { id } tags { id } }
		}
	}`
	var out struct {
		FindScene *wireScene `json:"findScene"`
	}
	if err := c.execute(ctx, query, map[string]any{"id": id}, &out); err != nil {
		return nil, err
	}
	if out.FindScene == nil {
		return nil, model.NewCatalogError(model.CatalogErrNotFound, "scene "+id, nil)
	}
	scene := toModelScene(*out.FindScene)
	if c.cache != nil {
		c.cache.Set(cacheKey, scene, 30*time.Second)
	}
	return &scene, nil
}

// FindScenes returns up to 10000 scenes matching filter, taken from the
// first page of get_scenes (§4.1). The query argument is not sent to the
// Catalog.
func (c *Client) FindScenes(ctx context.Context, query string, filter SceneFilter) ([]model.Scene, error) {
	scenes, _, err := c.GetScenes(ctx, 1, 10000, filter, SortOption{})
	return scenes, err
}

// GetAllPerformers returns every performer known to the Catalog (§4.1).
func (c *Client) GetAllPerformers(ctx context.Context) ([]model.Performer, error) {
	cacheKey := entityCachePrefix + "performers:all"
	if c.cache != nil {
		if v, ok := c.cache.Get(cacheKey); ok {
			return v.([]model.Performer), nil
		}
	}
	const query = `query { allPerformers { id name aliases } }`
	var out struct {
		AllPerformers []struct {
			ID      string   `json:"id"`
			Name    string   `json:"name"`
			Aliases []string `json:"aliases"`
		} `json:"allPerformers"`
	}
	if err := c.execute(ctx, query, nil, &out); err != nil {
		return nil, err
	}
	performers := make([]model.Performer, 0, len(out.AllPerformers))
	for _, p := range out.AllPerformers {
		performers = append(performers, model.Performer{ID: p.ID, Name: p.Name, Aliases: p.Aliases})
	}
	if c.cache != nil {
		c.cache.Set(cacheKey, performers, 1*time.Hour)
	}
	return performers, nil
}

// GetAllTags returns every tag known to the Catalog (§4.1).
func (c *Client) GetAllTags(ctx context.Context) ([]model.Tag, error) {
	cacheKey := entityCachePrefix + "tags:all"
	if c.cache != nil {
		if v, ok := c.cache.Get(cacheKey); ok {
			return v.([]model.Tag), nil
		}
	}
	const query = `query { allTags { id name parent { id } } }`
	var out struct {
		AllTags []struct {
			ID     string   `json:"id"`
			Name   string   `json:"name"`
			Parent *wireRef `json:"parent"`
		} `json:"allTags"`
	}
	if err := c.execute(ctx, query, nil, &out); err != nil {
		return nil, err
	}
	tags := make([]model.Tag, 0, len(out.AllTags))
	for _, t := range out.AllTags {
		tag := model.Tag{ID: t.ID, Name: t.Name}
		if t.Parent != nil {
			id := t.Parent.ID
			tag.ParentID = &id
		}
		tags = append(tags, tag)
	}
	if c.cache != nil {
		c.cache.Set(cacheKey, tags, 1*time.Hour)
	}
	return tags, nil
}

// GetAllStudios returns every studio known to the Catalog (§4.1).
func (c *Client) GetAllStudios(ctx context.Context) ([]model.Studio, error) {
	cacheKey := entityCachePrefix + "studios:all"
	if c.cache != nil {
		if v, ok := c.cache.Get(cacheKey); ok {
			return v.([]model.Studio), nil
		}
	}
	const query = `query { allStudios { id name parent { id } } }`
	var out struct {
		AllStudios []struct {
			ID     string   `json:"id"`
			Name   string   `json:"name"`
			Parent *wireRef `json:"parent"`
		} `json:"allStudios"`
	}
	if err := c.execute(ctx, query, nil, &out); err != nil {
		return nil, err
	}
	studios := make([]model.Studio, 0, len(out.AllStudios))
	for _, s := range out.AllStudios {
		studio := model.Studio{ID: s.ID, Name: s.Name}
		if s.Parent != nil {
			id := s.Parent.ID
			studio.ParentID = &id
		}
		studios = append(studios, studio)
	}
	if c.cache != nil {
		c.cache.Set(cacheKey, studios, 1*time.Hour)
	}
	return studios, nil
}

// GetScenesSince returns scenes updated after the watermark (§4.8).
func (c *Client) GetScenesSince(ctx context.Context, since time.Time) ([]model.Scene, error) {
	const query = `query GetScenesSince($since: Time!) {
		findScenes(scene_filter: {updated_at: {value: $since, modifier: GREATER_THAN}}, filter: {per_page: -1}) {
			scenes { id title details url date rating100 organized created_at updated_at
				files { id path size width height duration frame_rate bit_rate video_codec fingerprints { type value } }
				performers { id name } tags { id name } studio { id name }
				markers { id seconds end_seconds title primary_tag { id } tags { id } }
			}
		}
	}`
	var out struct {
		FindScenes struct {
			Scenes []wireScene `json:"scenes"`
		} `json:"findScenes"`
	}
	if err := c.execute(ctx, query, map[string]any{"since": since.Format(time.RFC3339)}, &out); err != nil {
		return nil, err
	}
	scenes := make([]model.Scene, 0, len(out.FindScenes.Scenes))
	for _, w := range out.FindScenes.Scenes {
		scenes = append(scenes, toModelScene(w))
	}
	return scenes, nil
}

// GetStats returns Catalog-wide entity counts (§4.1).
func (c *Client) GetStats(ctx context.Context) (Stats, error) {
	const query = `query { stats { scene_count performer_count tag_count studio_count } }`
	var out struct {
		Stats Stats `json:"stats"`
	}
	if err := c.execute(ctx, query, nil, &out); err != nil {
		return Stats{}, err
	}
	return out.Stats, nil
}
