package layerfs

import "time"

// EntryType classifies a file entry.
type EntryType string

const (
	EntryTypeFile      EntryType = "file"
	EntryTypeDirectory EntryType = "directory"
)

// EntryState distinguishes entries backed by a native container record from
// entries synthesized by the engine. Code paths that must not touch a
// native record branch on this state rather than probing for nil records.
type EntryState string

const (
	// EntryStateConcrete is an entry backed by a native record.
	EntryStateConcrete EntryState = "concrete"

	// EntryStateVirtual is an entry synthesized because the container has
	// no native record for it (e.g., an archive path that exists only as a
	// member-name prefix).
	EntryStateVirtual EntryState = "virtual"

	// EntryStateVirtualRoot is a root directory synthesized for a
	// container format that has no explicit root record.
	EntryStateVirtualRoot EntryState = "virtual_root"
)

// Stat is the metadata summary of one file entry. Pointer fields are nil
// when the underlying container does not report the attribute.
type Stat struct {
	Size        *int64     // byte size; nil when unknown
	Type        EntryType  // file or directory
	IsAllocated bool       // allocation status of the native record
	ModTime     *time.Time // modification time when the format records one
	Mode        *uint32    // permission bits when the format records them
}
