package resolver

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/brettbedarf/layerfs"
)

// FileObjectFactory produces the file object of one layer. parent is the
// opened stream of the layer below, already resolved by the engine; it is
// nil for parentless kinds, which read directly from outside storage. The
// factory is invoked exactly once per cache miss and must not duplicate
// decode state.
type FileObjectFactory func(parent layerfs.FileObject, spec *layerfs.PathSpec) (layerfs.FileObject, error)

// FileSystemFactory produces the file system of one container layer.
// parent is the opened stream of the layer below, already resolved by the
// engine. The context is supplied for post-construction lazy use only; the
// factory must not acquire or release handles on it while constructing.
type FileSystemFactory func(rc *Context, parent layerfs.FileObject, spec *layerfs.PathSpec) (layerfs.FileSystem, error)

// Registry maps a container kind to the constructors for that kind's
// file-object and file-system implementations. It is read-mostly
// process-wide state; register everything at process start.
type Registry struct {
	fileObjects *xsync.Map[layerfs.TypeIndicator, FileObjectFactory]
	fileSystems *xsync.Map[layerfs.TypeIndicator, FileSystemFactory]
}

func NewRegistry() *Registry {
	return &Registry{
		fileObjects: xsync.NewMap[layerfs.TypeIndicator, FileObjectFactory](),
		fileSystems: xsync.NewMap[layerfs.TypeIndicator, FileSystemFactory](),
	}
}

// DefaultRegistry is the process-wide registry used when a Resolver is
// constructed without an explicit one.
var DefaultRegistry = NewRegistry()

// RegisterFileObject ties a file-object factory to a type indicator.
// Registering the same indicator twice keeps the first factory.
func (r *Registry) RegisterFileObject(t layerfs.TypeIndicator, factory FileObjectFactory) {
	r.fileObjects.LoadOrStore(t, factory)
}

// RegisterFileSystem ties a file-system factory to a type indicator.
// Registering the same indicator twice keeps the first factory.
func (r *Registry) RegisterFileSystem(t layerfs.TypeIndicator, factory FileSystemFactory) {
	r.fileSystems.LoadOrStore(t, factory)
}

func (r *Registry) fileObjectFactory(t layerfs.TypeIndicator) (FileObjectFactory, error) {
	factory, ok := r.fileObjects.Load(t)
	if !ok {
		return nil, fmt.Errorf("%w: no file-object factory for %q", layerfs.ErrUnsupportedType, t)
	}
	return factory, nil
}

func (r *Registry) fileSystemFactory(t layerfs.TypeIndicator) (FileSystemFactory, error) {
	factory, ok := r.fileSystems.Load(t)
	if !ok {
		return nil, fmt.Errorf("%w: no file-system factory for %q", layerfs.ErrUnsupportedType, t)
	}
	return factory, nil
}
