package adapters

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"
	"strings"
	"time"

	"github.com/brettbedarf/layerfs"
	"github.com/brettbedarf/layerfs/internal/util"
	"github.com/brettbedarf/layerfs/resolver"
)

// RegisterTAR registers the tar archive layer: a file-system factory for
// hierarchy traversal and a file-object factory for member data. Decoding
// is delegated to archive/tar; compression is never handled here, a
// compressed archive chains a compressed-stream layer below this one.
func RegisterTAR(reg *resolver.Registry) {
	reg.RegisterFileSystem(layerfs.TypeTAR, func(rc *resolver.Context, parent layerfs.FileObject, spec *layerfs.PathSpec) (layerfs.FileSystem, error) {
		return newTARFileSystem(parent, spec)
	})
	reg.RegisterFileObject(layerfs.TypeTAR, func(parent layerfs.FileObject, spec *layerfs.PathSpec) (layerfs.FileObject, error) {
		location := spec.Location()
		if !strings.HasPrefix(location, layerfs.LocationRoot) {
			return nil, fmt.Errorf("tar member requires an absolute location, got %q", location)
		}
		data, err := readTARMember(parent, location[1:])
		if err != nil {
			return nil, err
		}
		return newMemoryFileObject(data), nil
	})
}

// tarMember is the index record of one native archive member.
type tarMember struct {
	size    int64
	mode    uint32
	modTime time.Time
	isDir   bool
}

type tarFileSystem struct {
	parent  layerfs.FileObject
	spec    *layerfs.PathSpec // container root spec
	members map[string]*tarMember
	names   []string // canonical member names, sorted
	logger  util.Logger
}

// newTARFileSystem walks the archive once to index member names and
// metadata. Member data stays in the parent stream and is read on demand.
func newTARFileSystem(parent layerfs.FileObject, spec *layerfs.PathSpec) (*tarFileSystem, error) {
	if _, err := parent.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	members := make(map[string]*tarMember)
	reader := tar.NewReader(parent)
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar index: %w", err)
		}
		name := canonicalTARName(header.Name)
		if name == "" {
			continue
		}
		members[name] = &tarMember{
			size:    header.Size,
			mode:    uint32(header.Mode),
			modTime: header.ModTime,
			isDir:   header.Typeflag == tar.TypeDir,
		}
	}

	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)

	fs := &tarFileSystem{
		parent:  parent,
		spec:    spec,
		members: members,
		names:   names,
		logger:  util.GetLogger("adapters.tarFileSystem"),
	}
	fs.logger.Debug().Int("members", len(members)).Msg("Indexed tar archive")
	return fs, nil
}

func (fs *tarFileSystem) TypeIndicator() layerfs.TypeIndicator { return layerfs.TypeTAR }

func (fs *tarFileSystem) FileEntryExistsByPathSpec(spec *layerfs.PathSpec) (bool, error) {
	location := spec.Location()
	if !strings.HasPrefix(location, layerfs.LocationRoot) {
		return false, nil
	}
	if location == layerfs.LocationRoot {
		return true, nil
	}
	name := location[1:]
	if _, ok := fs.members[name]; ok {
		return true, nil
	}
	// The location may be a virtual directory that exists only as a
	// member-name prefix.
	return fs.hasPrefix(name), nil
}

func (fs *tarFileSystem) GetFileEntryByPathSpec(spec *layerfs.PathSpec) (layerfs.FileEntry, error) {
	exists, err := fs.FileEntryExistsByPathSpec(spec)
	if err != nil || !exists {
		return nil, err
	}

	location := spec.Location()
	if location == layerfs.LocationRoot {
		return &tarFileEntry{fs: fs, spec: spec, state: layerfs.EntryStateVirtualRoot}, nil
	}
	if member, ok := fs.members[location[1:]]; ok {
		return &tarFileEntry{fs: fs, spec: spec, state: layerfs.EntryStateConcrete, member: member}, nil
	}
	return &tarFileEntry{fs: fs, spec: spec, state: layerfs.EntryStateVirtual}, nil
}

func (fs *tarFileSystem) GetRootFileEntry() (layerfs.FileEntry, error) {
	root, err := fs.spec.ContainerRoot()
	if err != nil {
		return nil, err
	}
	return fs.GetFileEntryByPathSpec(root)
}

func (fs *tarFileSystem) Close() error {
	fs.members = nil
	fs.names = nil
	return nil
}

func (fs *tarFileSystem) hasPrefix(name string) bool {
	prefix := name + "/"
	// names is sorted, so the first candidate at or after the prefix
	// decides.
	i := sort.SearchStrings(fs.names, prefix)
	return i < len(fs.names) && strings.HasPrefix(fs.names[i], prefix)
}

// childNames returns the direct children of a directory location, merging
// explicit members with virtual directories implied by deeper names.
func (fs *tarFileSystem) childNames(location string) []string {
	prefix := ""
	if location != layerfs.LocationRoot {
		prefix = location[1:] + "/"
	}

	seen := make(map[string]bool)
	var children []string
	for _, name := range fs.names {
		if !strings.HasPrefix(name, prefix) || name == prefix {
			continue
		}
		rest := name[len(prefix):]
		child, _, _ := strings.Cut(rest, "/")
		if child == "" || seen[child] {
			continue
		}
		seen[child] = true
		children = append(children, child)
	}
	return children
}

func (fs *tarFileSystem) readMember(name string) ([]byte, error) {
	return readTARMember(fs.parent, name)
}

type tarFileEntry struct {
	fs         *tarFileSystem
	spec       *layerfs.PathSpec
	state      layerfs.EntryState
	member     *tarMember
	fileObject layerfs.FileObject
}

func (e *tarFileEntry) Name() string { return e.spec.Basename() }

func (e *tarFileEntry) PathSpec() *layerfs.PathSpec { return e.spec }

func (e *tarFileEntry) State() layerfs.EntryState { return e.state }

func (e *tarFileEntry) Stat() (*layerfs.Stat, error) {
	if e.state != layerfs.EntryStateConcrete {
		// Synthesized entries have no native record to consult.
		return &layerfs.Stat{Type: layerfs.EntryTypeDirectory, IsAllocated: true}, nil
	}

	stat := &layerfs.Stat{Type: layerfs.EntryTypeFile, IsAllocated: true}
	if e.member.isDir {
		stat.Type = layerfs.EntryTypeDirectory
	} else {
		size := e.member.size
		stat.Size = &size
	}
	mode := e.member.mode
	stat.Mode = &mode
	if !e.member.modTime.IsZero() {
		modTime := e.member.modTime
		stat.ModTime = &modTime
	}
	return stat, nil
}

func (e *tarFileEntry) SubFileEntries() iter.Seq2[layerfs.FileEntry, error] {
	return func(yield func(layerfs.FileEntry, error) bool) {
		stat, err := e.Stat()
		if err != nil {
			yield(nil, err)
			return
		}
		if stat.Type != layerfs.EntryTypeDirectory {
			return
		}
		// Children are recomputed on every enumeration; nothing iterator
		// shaped is retained between walks.
		for _, child := range e.fs.childNames(e.spec.Location()) {
			location := e.spec.Location()
			if location == layerfs.LocationRoot {
				location = ""
			}
			childSpec, err := layerfs.NewPathSpec(layerfs.TypeTAR, e.spec.Parent(), layerfs.Attrs{
				Location: location + "/" + child,
			})
			if err != nil {
				yield(nil, err)
				return
			}
			entry, err := e.fs.GetFileEntryByPathSpec(childSpec)
			if err != nil {
				yield(nil, err)
				return
			}
			if entry == nil {
				continue
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func (e *tarFileEntry) GetFileObject() (layerfs.FileObject, error) {
	if e.fileObject != nil {
		return e.fileObject, nil
	}
	stat, err := e.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Type == layerfs.EntryTypeDirectory {
		return nil, fmt.Errorf("no byte stream for directory entry %q", e.spec.Location())
	}
	data, err := e.fs.readMember(e.spec.Location()[1:])
	if err != nil {
		return nil, err
	}
	e.fileObject = newMemoryFileObject(data)
	return e.fileObject, nil
}

// canonicalTARName normalizes a native member name to the index form:
// no "./" prefix, no trailing separator.
func canonicalTARName(name string) string {
	name = strings.TrimPrefix(name, "./")
	return strings.TrimSuffix(name, "/")
}

// readTARMember walks the archive from the start and returns one member's
// bytes. archive/tar is a forward-only reader, so every read re-walks;
// member data lands in memory to give callers a seekable handle.
func readTARMember(parent layerfs.FileObject, name string) ([]byte, error) {
	if _, err := parent.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	reader := tar.NewReader(parent)
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("tar member %q not found", name)
		}
		if err != nil {
			return nil, err
		}
		if canonicalTARName(header.Name) != name {
			continue
		}
		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("reading tar member %q: %w", name, err)
		}
		return data, nil
	}
}
