package layerfs

import (
	"io"
	"iter"
)

// FileObject is a live, seekable byte-stream handle produced by decoding
// one layer. Implementations own their decoder state but do NOT own the
// parent layer's stream: the resolver context that supplied the parent
// keeps it open for the file object's lifetime and releases it when this
// object's reference count reaches zero.
type FileObject interface {
	io.Reader
	io.Seeker
	io.Closer

	// Size returns the total byte size of the decoded stream.
	Size() (int64, error)
}

// FileSystem is a live handle exposing hierarchy traversal for one
// container layer. Implementations open against one parent stream at
// construction; the parent stream's lifetime is managed by the resolver
// context that performed the construction.
type FileSystem interface {
	// TypeIndicator returns the container kind this file system decodes.
	TypeIndicator() TypeIndicator

	// FileEntryExistsByPathSpec reports whether an entry exists for the
	// path specification. Not-found is a plain false, never an error.
	FileEntryExistsByPathSpec(spec *PathSpec) (bool, error)

	// GetFileEntryByPathSpec returns the entry matching the path
	// specification, or (nil, nil) when no such entry exists.
	GetFileEntryByPathSpec(spec *PathSpec) (FileEntry, error)

	// GetRootFileEntry returns the container's root entry.
	GetRootFileEntry() (FileEntry, error)

	// Close releases the file system's own decoder state. It is invoked by
	// the resolver context when the last reference is released.
	Close() error
}

// FileEntry is one addressable node inside a FileSystem's hierarchy.
type FileEntry interface {
	// Name returns the entry name without the full path: the basename of
	// the descriptor's location, or "" for entries reachable only by a
	// non-location attribute.
	Name() string

	// PathSpec returns the entry's descriptor.
	PathSpec() *PathSpec

	// State reports whether the entry is backed by a native record or
	// synthesized by the engine.
	State() EntryState

	// Stat returns the entry's metadata summary.
	Stat() (*Stat, error)

	// SubFileEntries returns a lazy, restartable sequence of child
	// entries. Each ranging re-enumerates the container from the start;
	// the sequence is never cached as a stateful iterator.
	SubFileEntries() iter.Seq2[FileEntry, error]

	// GetFileObject returns the file object for this entry's own
	// descriptor, opened against the parent container's live stream. It is
	// constructed at most once per entry instance.
	GetFileObject() (FileObject, error)
}
