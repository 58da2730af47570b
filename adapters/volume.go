package adapters

import (
	"github.com/brettbedarf/layerfs"
)

// VolumeSystem is the decoder contract a partition-table engine must
// satisfy to plug into the partition adapter. The engine itself never
// parses the table's binary format.
type VolumeSystem interface {
	// BytesPerSector returns the volume's sector size in bytes.
	BytesPerSector() int64

	// Records returns every partition record in on-disk order, allocated
	// or not, as a freshly built list. Implementations wrapping a native
	// iterator that is unsafe to reuse must re-walk it from the start on
	// every call rather than handing out cached iterator state.
	Records() ([]*VolumeRecord, error)

	Close() error
}

// VolumeRecord is one native partition record. Pointer fields are nil when
// the native format does not report the attribute.
type VolumeRecord struct {
	StartSector *int64
	NumSectors  *int64
	Allocated   bool
}

// VolumeSystemOpener decodes a volume system from an opened parent stream.
type VolumeSystemOpener func(parent layerfs.FileObject) (VolumeSystem, error)

// StaticVolumeSystem is a VolumeSystem over a fixed record table. It backs
// synthetic volumes in tests and callers that obtain partition layouts out
// of band.
type StaticVolumeSystem struct {
	bytesPerSector int64
	records        []*VolumeRecord
}

func NewStaticVolumeSystem(bytesPerSector int64, records []*VolumeRecord) *StaticVolumeSystem {
	return &StaticVolumeSystem{bytesPerSector: bytesPerSector, records: records}
}

func (v *StaticVolumeSystem) BytesPerSector() int64 { return v.bytesPerSector }

// Records returns a fresh copy of the table on every call, matching the
// restartable-walk contract.
func (v *StaticVolumeSystem) Records() ([]*VolumeRecord, error) {
	records := make([]*VolumeRecord, len(v.records))
	copy(records, v.records)
	return records, nil
}

func (v *StaticVolumeSystem) Close() error { return nil }
