package resolver

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/brettbedarf/layerfs"
	"github.com/brettbedarf/layerfs/config"
	"github.com/brettbedarf/layerfs/internal/util"
)

// Context owns the caches of opened file objects and opened file systems,
// keyed by descriptor identity, with reference counting. A handle is
// resident iff its reference count is at least one; the transition to zero
// closes the handle and releases its own reference to its parent's handle,
// recursively. Callers must treat acquire/release as paired, scope-bound
// operations: acquire on entry to an operation, release on every exit path,
// including failure.
//
// All cache mutations happen under one mutex per context, so an acquired
// handle can never be closed concurrently by another goroutine's release.
type Context struct {
	// ID correlates log lines of one context.
	ID string

	cfg    *config.Config
	logger util.Logger

	mu          sync.Mutex
	seq         uint64
	fileObjects handleCache[layerfs.FileObject]
	fileSystems handleCache[layerfs.FileSystem]
}

var logInit sync.Once

// NewContext creates a resolver context. A nil cfg uses the defaults. The
// first context created in the process configures global logging from its
// config's verbosity.
func NewContext(cfg *config.Config) *Context {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	logInit.Do(func() { util.InitializeLogger(cfg.LogLvl) })
	id := uuid.New().String()
	return &Context{
		ID:          id,
		cfg:         cfg,
		logger:      util.GetLogger("resolver.Context").With().Str("context_id", id).Logger(),
		fileObjects: newHandleCache[layerfs.FileObject]("file_object", cfg.MaxFileObjects),
		fileSystems: newHandleCache[layerfs.FileSystem]("file_system", cfg.MaxFileSystems),
	}
}

// ReleaseFileObject decrements the reference count of the file object
// cached for spec. At zero the handle is closed, removed, and its own
// reference to its parent's handle is released recursively. Releasing a
// descriptor with no resident handle returns ErrReleaseUnreferenced.
func (rc *Context) ReleaseFileObject(spec *layerfs.PathSpec) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.releaseFileObjectLocked(spec.Key())
}

// ReleaseFileSystem decrements the reference count of the file system
// caching the container that spec addresses into. At zero the file system
// is closed and its reference to the parent stream is released.
func (rc *Context) ReleaseFileSystem(spec *layerfs.PathSpec) error {
	root, err := spec.ContainerRoot()
	if err != nil {
		return err
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.releaseFileSystemLocked(root.Key())
}

// ResidentFileObjects returns the number of resident file-object handles.
func (rc *Context) ResidentFileObjects() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.fileObjects.entries)
}

// ResidentFileSystems returns the number of resident file-system handles.
func (rc *Context) ResidentFileSystems() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.fileSystems.entries)
}

// Empty reports whether both caches hold no handles. After every acquire
// has been paired with a release this is always true.
func (rc *Context) Empty() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.fileObjects.entries) == 0 && len(rc.fileSystems.entries) == 0
}

func (rc *Context) nextSeq() uint64 {
	rc.seq++
	return rc.seq
}

// hitFileObjectLocked increments and returns a cached handle, if resident.
func (rc *Context) hitFileObjectLocked(key string) (layerfs.FileObject, bool) {
	entry, ok := rc.fileObjects.entries[key]
	if !ok {
		return nil, false
	}
	entry.refs++
	entry.seq = rc.nextSeq()
	rc.logger.Trace().Str("key", key).Int("refs", entry.refs).Msg("file object cache hit")
	return entry.handle, true
}

func (rc *Context) hitFileSystemLocked(key string) (layerfs.FileSystem, bool) {
	entry, ok := rc.fileSystems.entries[key]
	if !ok {
		return nil, false
	}
	entry.refs++
	entry.seq = rc.nextSeq()
	rc.logger.Trace().Str("key", key).Int("refs", entry.refs).Msg("file system cache hit")
	return entry.handle, true
}

// insertFileObjectLocked registers a freshly opened handle with reference
// count one, evicting the least-recently-acquired idle entry when the
// residency bound would be exceeded.
func (rc *Context) insertFileObjectLocked(spec *layerfs.PathSpec, handle layerfs.FileObject) {
	if victim := rc.fileObjects.makeRoom(); victim != nil {
		rc.evictFileObjectLocked(victim)
	} else if len(rc.fileObjects.entries) >= rc.fileObjects.max {
		rc.logger.Warn().
			Int("max", rc.fileObjects.max).
			Msg("file object cache over budget with all handles referenced")
	}
	rc.fileObjects.entries[spec.Key()] = &cacheEntry[layerfs.FileObject]{
		handle: handle,
		parent: spec.Parent(),
		refs:   1,
		seq:    rc.nextSeq(),
	}
	rc.logger.Debug().Str("key", spec.Key()).Msg("file object opened")
}

func (rc *Context) insertFileSystemLocked(spec *layerfs.PathSpec, handle layerfs.FileSystem) {
	if victim := rc.fileSystems.makeRoom(); victim != nil {
		rc.evictFileSystemLocked(victim)
	} else if len(rc.fileSystems.entries) >= rc.fileSystems.max {
		rc.logger.Warn().
			Int("max", rc.fileSystems.max).
			Msg("file system cache over budget with all handles referenced")
	}
	rc.fileSystems.entries[spec.Key()] = &cacheEntry[layerfs.FileSystem]{
		handle: handle,
		parent: spec.Parent(),
		refs:   1,
		seq:    rc.nextSeq(),
	}
	rc.logger.Debug().Str("key", spec.Key()).Msg("file system opened")
}

func (rc *Context) releaseFileObjectLocked(key string) error {
	entry, ok := rc.fileObjects.entries[key]
	if !ok {
		return fmt.Errorf("%w: file object %q", layerfs.ErrReleaseUnreferenced, key)
	}
	entry.refs--
	if entry.refs > 0 {
		return nil
	}
	delete(rc.fileObjects.entries, key)
	rc.logger.Debug().Str("key", key).Msg("file object closed")
	return rc.closeWithParentLocked(entry.handle, entry.parent)
}

func (rc *Context) releaseFileSystemLocked(key string) error {
	entry, ok := rc.fileSystems.entries[key]
	if !ok {
		return fmt.Errorf("%w: file system %q", layerfs.ErrReleaseUnreferenced, key)
	}
	entry.refs--
	if entry.refs > 0 {
		return nil
	}
	delete(rc.fileSystems.entries, key)
	rc.logger.Debug().Str("key", key).Msg("file system closed")
	return rc.closeWithParentLocked(entry.handle, entry.parent)
}

// closeWithParentLocked closes a handle and releases the parent reference
// it held, keeping the ancestor-before-descendant close order intact.
func (rc *Context) closeWithParentLocked(handle io.Closer, parent *layerfs.PathSpec) error {
	err := handle.Close()
	if parent != nil {
		err = errors.Join(err, rc.releaseFileObjectLocked(parent.Key()))
	}
	return err
}

func (rc *Context) evictFileObjectLocked(victim *evicted) {
	delete(rc.fileObjects.entries, victim.key)
	rc.logger.Debug().Str("key", victim.key).Msg("file object evicted")
	if err := rc.closeWithParentLocked(victim.handle, victim.parent); err != nil {
		rc.logger.Warn().Err(err).Str("key", victim.key).Msg("closing evicted file object")
	}
}

func (rc *Context) evictFileSystemLocked(victim *evicted) {
	delete(rc.fileSystems.entries, victim.key)
	rc.logger.Debug().Str("key", victim.key).Msg("file system evicted")
	if err := rc.closeWithParentLocked(victim.handle, victim.parent); err != nil {
		rc.logger.Warn().Err(err).Str("key", victim.key).Msg("closing evicted file system")
	}
}

// cacheEntry is one resident handle with its reference count. parent is
// the descriptor whose file object this handle keeps open for its own
// lifetime, nil for parentless layers.
type cacheEntry[H io.Closer] struct {
	handle H
	parent *layerfs.PathSpec
	refs   int
	seq    uint64
}

type handleCache[H io.Closer] struct {
	name    string
	max     int
	entries map[string]*cacheEntry[H]
}

func newHandleCache[H io.Closer](name string, max int) handleCache[H] {
	return handleCache[H]{
		name:    name,
		max:     max,
		entries: make(map[string]*cacheEntry[H]),
	}
}

// evicted carries the fields the context needs to dispose of a victim
// outside the generic cache type.
type evicted struct {
	key    string
	handle io.Closer
	parent *layerfs.PathSpec
}

// makeRoom picks the least-recently-acquired entry with reference count
// zero when the cache is at its bound. Under the paired acquire/release
// discipline zero-ref entries are removed immediately on release, so this
// only matters when callers retain handles without releasing.
func (c *handleCache[H]) makeRoom() *evicted {
	if len(c.entries) < c.max {
		return nil
	}
	var victimKey string
	var victim *cacheEntry[H]
	for key, entry := range c.entries {
		if entry.refs != 0 {
			continue
		}
		if victim == nil || entry.seq < victim.seq {
			victimKey = key
			victim = entry
		}
	}
	if victim == nil {
		return nil
	}
	return &evicted{key: victimKey, handle: victim.handle, parent: victim.parent}
}
