// Package resolver turns path specification chains into live handles. The
// Resolver recursively opens every ancestor layer of a descriptor through a
// Context's reference-counted caches, so shared ancestors are opened
// exactly once, and constructs the requested handle with the factories of
// a Registry.
package resolver

import (
	"fmt"

	"github.com/brettbedarf/layerfs"
	"github.com/brettbedarf/layerfs/internal/util"
)

// Resolver is the stateless orchestration logic, parameterized by a
// Registry at construction and a Context per call. All resolution happens
// synchronously on the caller's goroutine; the engine performs no
// background work.
type Resolver struct {
	reg    *Registry
	logger util.Logger
}

// New creates a Resolver. A nil registry uses DefaultRegistry.
func New(reg *Registry) *Resolver {
	if reg == nil {
		reg = DefaultRegistry
	}
	return &Resolver{
		reg:    reg,
		logger: util.GetLogger("resolver.Resolver"),
	}
}

// OpenFileObject acquires the file object for spec: a cache hit increments
// the handle's reference count; a miss opens every missing ancestor in
// order, outermost first, before decoding this layer. Pair every
// successful call with rc.ReleaseFileObject(spec) on all exit paths. On
// failure no reference is retained and no handle leaks.
func (r *Resolver) OpenFileObject(rc *Context, spec *layerfs.PathSpec) (layerfs.FileObject, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return r.openFileObjectLocked(rc, spec)
}

// OpenFileSystem acquires the file system of the container that spec
// addresses into. Sibling descriptors of one container share a single
// cached file system. Pair every successful call with
// rc.ReleaseFileSystem(spec).
func (r *Resolver) OpenFileSystem(rc *Context, spec *layerfs.PathSpec) (layerfs.FileSystem, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	root, err := spec.ContainerRoot()
	if err != nil {
		return nil, err
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return r.openFileSystemLocked(rc, root)
}

// OpenFileEntry opens the file system containing spec and returns its
// entry, or (nil, nil) when no entry exists. On a returned entry the file
// system reference is retained on the entry's behalf: release it with
// rc.ReleaseFileSystem(spec) when done with the entry.
func (r *Resolver) OpenFileEntry(rc *Context, spec *layerfs.PathSpec) (layerfs.FileEntry, error) {
	fs, err := r.OpenFileSystem(rc, spec)
	if err != nil {
		return nil, err
	}
	entry, err := fs.GetFileEntryByPathSpec(spec)
	if err != nil || entry == nil {
		r.releaseFileSystemRef(rc, spec)
		return nil, err
	}
	return entry, nil
}

// GetRootFileEntry resolves the container root of the layer identified by
// spec. The file system reference is retained on the entry's behalf:
// release it with rc.ReleaseFileSystem(spec) when done with the entry.
func (r *Resolver) GetRootFileEntry(rc *Context, spec *layerfs.PathSpec) (layerfs.FileEntry, error) {
	fs, err := r.OpenFileSystem(rc, spec)
	if err != nil {
		return nil, err
	}
	entry, err := fs.GetRootFileEntry()
	if err != nil || entry == nil {
		r.releaseFileSystemRef(rc, spec)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: container has no root entry", layerfs.ErrInvalidPathSpec)
	}
	return entry, nil
}

// FileEntryExists reports whether an entry exists for spec. Not-found is a
// plain false, never an error. The file system acquired for the check is
// released before returning.
func (r *Resolver) FileEntryExists(rc *Context, spec *layerfs.PathSpec) (bool, error) {
	fs, err := r.OpenFileSystem(rc, spec)
	if err != nil {
		return false, err
	}
	exists, err := fs.FileEntryExistsByPathSpec(spec)
	r.releaseFileSystemRef(rc, spec)
	return exists, err
}

func (r *Resolver) releaseFileSystemRef(rc *Context, spec *layerfs.PathSpec) {
	if err := rc.ReleaseFileSystem(spec); err != nil {
		r.logger.Warn().Err(err).Stringer("spec", spec).Msg("releasing file system")
	}
}

// openFileObjectLocked resolves spec under the context lock. Ancestors are
// acquired depth-first, so each recursion level either hits the cache or
// opens exactly one new layer; a factory failure unwinds the parent
// reference acquired for it before propagating.
func (r *Resolver) openFileObjectLocked(rc *Context, spec *layerfs.PathSpec) (layerfs.FileObject, error) {
	if handle, ok := rc.hitFileObjectLocked(spec.Key()); ok {
		return handle, nil
	}

	factory, err := r.reg.fileObjectFactory(spec.Type())
	if err != nil {
		return nil, err
	}

	var parent layerfs.FileObject
	if spec.HasParent() {
		// Recursion unwinds its own partial references on failure.
		if parent, err = r.openFileObjectLocked(rc, spec.Parent()); err != nil {
			return nil, err
		}
	}

	handle, err := factory(parent, spec)
	if err != nil {
		if spec.HasParent() {
			if relErr := rc.releaseFileObjectLocked(spec.Parent().Key()); relErr != nil {
				r.logger.Warn().Err(relErr).Stringer("spec", spec).Msg("unwinding parent reference")
			}
		}
		return nil, &layerfs.DecodeError{Type: spec.Type(), Depth: spec.Depth(), Err: err}
	}

	rc.insertFileObjectLocked(spec, handle)
	return handle, nil
}

func (r *Resolver) openFileSystemLocked(rc *Context, root *layerfs.PathSpec) (layerfs.FileSystem, error) {
	if handle, ok := rc.hitFileSystemLocked(root.Key()); ok {
		return handle, nil
	}

	factory, err := r.reg.fileSystemFactory(root.Type())
	if err != nil {
		return nil, err
	}
	if !root.HasParent() {
		return nil, fmt.Errorf("%w: file system %q requires a parent stream", layerfs.ErrInvalidPathSpec, root.Type())
	}

	parent, err := r.openFileObjectLocked(rc, root.Parent())
	if err != nil {
		return nil, err
	}

	handle, err := factory(rc, parent, root)
	if err != nil {
		if relErr := rc.releaseFileObjectLocked(root.Parent().Key()); relErr != nil {
			r.logger.Warn().Err(relErr).Stringer("spec", root).Msg("unwinding parent reference")
		}
		return nil, &layerfs.DecodeError{Type: root.Type(), Depth: root.Depth(), Err: err}
	}

	rc.insertFileSystemLocked(root, handle)
	return handle, nil
}
