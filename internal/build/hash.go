package build

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/iieono/make-via-backend-sub000/internal/snapshot"
)

// ComputeBuildHash fingerprints everything that influences build output: the
// app's identity, version and config fields, every page and component with
// its update timestamp, and the request's build parameters. The payload is
// marshalled as nested maps, so keys serialize sorted at every level and key
// order never changes the hash.
func ComputeBuildHash(snap *snapshot.AppSnapshot, req *Request) (string, error) {
	pages := make([]snapshot.Page, len(snap.Pages))
	copy(pages, snap.Pages)
	sort.Slice(pages, func(i, j int) bool { return pages[i].ID < pages[j].ID })

	pagePayload := make([]map[string]any, 0, len(pages))
	for _, page := range pages {
		pagePayload = append(pagePayload, map[string]any{
			"id":         page.ID,
			"route":      page.Route,
			"config":     map[string]any(page.Config),
			"sort_order": page.SortOrder,
			"updated_at": canonicalTime(page.UpdatedAt),
		})
	}

	components := make([]snapshot.Component, len(snap.Components))
	copy(components, snap.Components)
	sort.Slice(components, func(i, j int) bool { return components[i].ID < components[j].ID })

	componentPayload := make([]map[string]any, 0, len(components))
	for _, component := range components {
		componentPayload = append(componentPayload, map[string]any{
			"id":         component.ID,
			"page_id":    component.PageID,
			"type":       component.Type,
			"data":       map[string]any(component.Data),
			"properties": map[string]any(component.Properties),
			"sort_order": component.SortOrder,
			"updated_at": canonicalTime(component.UpdatedAt),
		})
	}

	buildConfig, err := normalizeConfig(req.BuildConfig)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"app": map[string]any{
			"id":           snap.App.ID,
			"name":         snap.App.Name,
			"package_name": snap.App.PackageName,
			"version_name": snap.App.VersionName,
			"version_code": snap.App.VersionCode,
			"icon":         snap.App.Icon,
			"capabilities": map[string]any(snap.App.Capabilities),
			"config":       map[string]any(snap.App.Config),
		},
		"pages":      pagePayload,
		"components": componentPayload,
		"build": map[string]any{
			"build_type":      string(req.BuildType),
			"build_mode":      string(req.BuildMode),
			"target_platform": string(req.TargetPlatform),
			"build_config":    buildConfig,
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal hash payload: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// normalizeConfig roundtrips the config through JSON so programmatic values
// and HTTP-decoded values encode identically.
func normalizeConfig(in map[string]any) (map[string]any, error) {
	if len(in) == 0 {
		return map[string]any{}, nil
	}

	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal build config: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize build config: %w", err)
	}
	return out, nil
}

func canonicalTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
