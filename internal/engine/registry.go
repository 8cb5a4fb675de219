package engine

import (
	"sync"
	"time"
)

// activeBuild is one registered build process.
type activeBuild struct {
	opts      StartOptions
	handle    string // container ID or Job name
	startedAt time.Time
	timer     *time.Timer
}

// registry tracks the builds a manager currently owns. Exactly one caller
// wins remove for a given build, which is what makes completion, timeout
// and cancellation report at most once.
type registry struct {
	mu     sync.RWMutex
	builds map[string]*activeBuild
}

func newRegistry() *registry {
	return &registry{
		builds: make(map[string]*activeBuild),
	}
}

// add registers a build, reporting false when the ID is already present.
func (r *registry) add(build *activeBuild) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builds[build.opts.BuildID]; exists {
		return false
	}
	r.builds[build.opts.BuildID] = build
	return true
}

func (r *registry) get(buildID string) (*activeBuild, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	build, ok := r.builds[buildID]
	return build, ok
}

// remove deletes and returns the build, reporting false when it was already
// gone.
func (r *registry) remove(buildID string) (*activeBuild, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	build, ok := r.builds[buildID]
	if !ok {
		return nil, false
	}
	delete(r.builds, buildID)

	if build.timer != nil {
		build.timer.Stop()
	}
	return build, true
}

func (r *registry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.builds))
	for id := range r.builds {
		ids = append(ids, id)
	}
	return ids
}
