package generator

import (
	"github.com/iieono/make-via-backend-sub000/internal/snapshot"
)

// Params carries the per-request knobs that shape the generated tree on top
// of the app snapshot.
type Params struct {
	BuildType      string
	BuildMode      string
	TargetPlatform string
	BuildConfig    map[string]any
}

// Generator produces the platform project tree for one build as a map of
// relative file paths to file contents. Implementations must be pure with
// respect to their inputs: the same snapshot and params yield the same tree.
type Generator interface {
	Generate(snap *snapshot.AppSnapshot, params Params) (map[string][]byte, error)
}
