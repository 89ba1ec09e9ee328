package catalogclient

import (
	"context"
)

// SceneUpdate carries the mutable fields of update_scene (§4.1). A nil
// pointer means "leave unchanged"; slices replace wholesale when non-nil.
type SceneUpdate struct {
	Title        *string
	Details      *string
	Rating       *int
	StudioID     *string
	PerformerIDs []string
	TagIDs       []string
}

// UpdateScene applies updates to a single scene, invalidating any cached
// copy of it (§4.2, §4.9 idempotency: re-applying the same update is a
// no-op on the Catalog side and safe to retry here).
func (c *Client) UpdateScene(ctx context.Context, id string, updates SceneUpdate) error {
	const mutation = `mutation UpdateScene($input: SceneUpdateInput!) {
		sceneUpdate(input: $input) { id }
	}`
	input := map[string]any{"id": id}
	if updates.Title != nil {
		input["title"] = *updates.Title
	}
	if updates.Details != nil {
		input["details"] = *updates.Details
	}
	if updates.Rating != nil {
		input["rating100"] = *updates.Rating * 20
	}
	if updates.StudioID != nil {
		input["studio_id"] = *updates.StudioID
	}
	if updates.PerformerIDs != nil {
		input["performer_ids"] = updates.PerformerIDs
	}
	if updates.TagIDs != nil {
		input["tag_ids"] = updates.TagIDs
	}

	err := c.execute(ctx, mutation, map[string]any{"input": input}, nil)
	if err == nil && c.cache != nil {
		c.cache.Invalidate(scenesCachePrefix + "scene:" + id)
	}
	return err
}

// BulkUpdateScenes applies the same updates to every id in ids (§4.1),
// continuing past per-scene failures and reporting each in errs.
func (c *Client) BulkUpdateScenes(ctx context.Context, ids []string, common SceneUpdate) (errs map[string]error) {
	errs = make(map[string]error)
	for _, id := range ids {
		if err := c.UpdateScene(ctx, id, common); err != nil {
			errs[id] = err
		}
	}
	return errs
}

// CreatePerformer creates a new performer and invalidates the performer
// listing cache (§4.1, §4.2).
func (c *Client) CreatePerformer(ctx context.Context, name string, aliases []string) (string, error) {
	const mutation = `mutation CreatePerformer($input: PerformerCreateInput!) {
		performerCreate(input: $input) { id }
	}`
	var out struct {
		PerformerCreate struct {
			ID string `json:"id"`
		} `json:"performerCreate"`
	}
	input := map[string]any{"name": name}
	if len(aliases) > 0 {
		input["alias_list"] = aliases
	}
	if err := c.execute(ctx, mutation, map[string]any{"input": input}, &out); err != nil {
		return "", err
	}
	if c.cache != nil {
		c.cache.Invalidate(entityCachePrefix + "performers:")
	}
	return out.PerformerCreate.ID, nil
}

// CreateTag creates a new tag and invalidates the tag listing cache.
func (c *Client) CreateTag(ctx context.Context, name string) (string, error) {
	const mutation = `mutation CreateTag($input: TagCreateInput!) {
		tagCreate(input: $input) { id }
	}`
	var out struct {
		TagCreate struct {
			ID string `json:"id"`
		} `json:"tagCreate"`
	}
	if err := c.execute(ctx, mutation, map[string]any{"input": map[string]any{"name": name}}, &out); err != nil {
		return "", err
	}
	if c.cache != nil {
		c.cache.Invalidate(entityCachePrefix + "tags:")
	}
	return out.TagCreate.ID, nil
}

// CreateStudio creates a new studio and invalidates the studio listing cache.
func (c *Client) CreateStudio(ctx context.Context, name string) (string, error) {
	const mutation = `mutation CreateStudio($input: StudioCreateInput!) {
		studioCreate(input: $input) { id }
	}`
	var out struct {
		StudioCreate struct {
			ID string `json:"id"`
		} `json:"studioCreate"`
	}
	if err := c.execute(ctx, mutation, map[string]any{"input": map[string]any{"name": name}}, &out); err != nil {
		return "", err
	}
	if c.cache != nil {
		c.cache.Invalidate(entityCachePrefix + "studios:")
	}
	return out.StudioCreate.ID, nil
}

// DeleteMarker removes a scene marker by id (§4.1, §4.7 markers/remove).
func (c *Client) DeleteMarker(ctx context.Context, sceneID, markerID string) error {
	const mutation = `mutation DeleteMarker($id: ID!) {
		sceneMarkerDestroy(id: $id)
	}`
	err := c.execute(ctx, mutation, map[string]any{"id": markerID}, nil)
	if err == nil && c.cache != nil {
		c.cache.Invalidate(scenesCachePrefix + "scene:" + sceneID)
	}
	return err
}

// FindOrCreateTag returns the id of a tag named name, creating it if
// absent. Idempotent: concurrent callers racing on the same name will
// both succeed, one via the Catalog's own uniqueness handling (§4.9).
func (c *Client) FindOrCreateTag(ctx context.Context, name string) (string, error) {
	tags, err := c.GetAllTags(ctx)
	if err != nil {
		return "", err
	}
	for _, t := range tags {
		if t.Name == name {
			return t.ID, nil
		}
	}
	return c.CreateTag(ctx, name)
}

// CreateMarker creates a scene marker at the given offset (§4.1).
func (c *Client) CreateMarker(ctx context.Context, sceneID string, seconds float64, title string, tagIDs []string) (string, error) {
	const mutation = `mutation CreateMarker($input: SceneMarkerCreateInput!) {
		sceneMarkerCreate(input: $input) { id }
	}`
	var out struct {
		SceneMarkerCreate struct {
			ID string `json:"id"`
		} `json:"sceneMarkerCreate"`
	}
	input := map[string]any{
		"scene_id": sceneID,
		"seconds":  seconds,
		"title":    title,
	}
	if len(tagIDs) > 0 {
		input["tag_ids"] = tagIDs
	}
	if err := c.execute(ctx, mutation, map[string]any{"input": input}, &out); err != nil {
		return "", err
	}
	if c.cache != nil {
		c.cache.Invalidate(scenesCachePrefix + "scene:" + sceneID)
	}
	return out.SceneMarkerCreate.ID, nil
}
