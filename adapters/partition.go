package adapters

import (
	"fmt"
	"iter"

	"github.com/brettbedarf/layerfs"
	"github.com/brettbedarf/layerfs/internal/util"
	"github.com/brettbedarf/layerfs/resolver"
)

// RegisterPartition registers the partition-table layer backed by the
// given volume-system decoder: a file-system factory for partition
// enumeration and a file-object factory serving one partition's byte range
// read directly from the physical parent stream.
func RegisterPartition(reg *resolver.Registry, open VolumeSystemOpener) {
	reg.RegisterFileSystem(layerfs.TypePartition, func(rc *resolver.Context, parent layerfs.FileObject, spec *layerfs.PathSpec) (layerfs.FileSystem, error) {
		volume, err := open(parent)
		if err != nil {
			return nil, err
		}
		return &partitionFileSystem{
			parent: parent,
			spec:   spec,
			volume: volume,
			logger: util.GetLogger("adapters.partitionFileSystem"),
		}, nil
	})

	reg.RegisterFileObject(layerfs.TypePartition, func(parent layerfs.FileObject, spec *layerfs.PathSpec) (layerfs.FileObject, error) {
		// The partition's descriptor chains directly onto the physical
		// source, so the volume is decoded here just long enough to locate
		// the record.
		volume, err := open(parent)
		if err != nil {
			return nil, err
		}
		defer volume.Close()

		record, err := findVolumeRecord(volume, spec)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, fmt.Errorf("%w: no volume record matches partition descriptor", layerfs.ErrInvalidPathSpec)
		}
		return newSectionFileObject(parent, volume, record, spec)
	})
}

type partitionFileSystem struct {
	parent layerfs.FileObject
	spec   *layerfs.PathSpec // container root spec
	volume VolumeSystem
	logger util.Logger
}

func (fs *partitionFileSystem) TypeIndicator() layerfs.TypeIndicator { return layerfs.TypePartition }

func (fs *partitionFileSystem) FileEntryExistsByPathSpec(spec *layerfs.PathSpec) (bool, error) {
	if isPartitionRoot(spec) {
		return true, nil
	}
	record, err := findVolumeRecord(fs.volume, spec)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

func (fs *partitionFileSystem) GetFileEntryByPathSpec(spec *layerfs.PathSpec) (layerfs.FileEntry, error) {
	if isPartitionRoot(spec) {
		return &partitionFileEntry{fs: fs, spec: spec, state: layerfs.EntryStateVirtualRoot}, nil
	}
	record, err := findVolumeRecord(fs.volume, spec)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	return &partitionFileEntry{fs: fs, spec: spec, state: layerfs.EntryStateConcrete}, nil
}

func (fs *partitionFileSystem) GetRootFileEntry() (layerfs.FileEntry, error) {
	root, err := fs.spec.ContainerRoot()
	if err != nil {
		return nil, err
	}
	return fs.GetFileEntryByPathSpec(root)
}

func (fs *partitionFileSystem) Close() error {
	return fs.volume.Close()
}

// partitionSpecs enumerates one descriptor per volume record, maintaining
// two independent counters: a zero-based structural index over every
// record and a one-based allocated-only index labelling addressable
// partitions /p1, /p2, ... Unallocated records get a structural index but
// no location. Each walk fetches a fresh record list; the native iterator
// below Records is not reused across walks.
func (fs *partitionFileSystem) partitionSpecs() iter.Seq2[*layerfs.PathSpec, error] {
	return func(yield func(*layerfs.PathSpec, error) bool) {
		records, err := fs.volume.Records()
		if err != nil {
			yield(nil, err)
			return
		}
		bytesPerSector := fs.volume.BytesPerSector()

		partIndex := 0
		partitionIndex := 0
		for _, record := range records {
			attrs := layerfs.Attrs{PartIndex: util.Pointer(partIndex)}
			partIndex++

			if record.Allocated {
				partitionIndex++
				attrs.Location = fmt.Sprintf("/p%d", partitionIndex)
			}
			if record.StartSector != nil {
				attrs.StartOffset = util.Pointer(*record.StartSector * bytesPerSector)
			}

			// The child chains onto the physical source, not onto the
			// partition-table layer: the partition's own file object reads
			// from the physical layer directly.
			spec, err := layerfs.NewPathSpec(layerfs.TypePartition, fs.spec.Parent(), attrs)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(spec, nil) {
				return
			}
		}
	}
}

// findVolumeRecord locates the native record a partition descriptor
// addresses: by structural index when the descriptor carries one, else by
// addressable location, else by byte start-offset. Returns nil when no
// record matches; only allocated records are reachable by location.
func findVolumeRecord(volume VolumeSystem, spec *layerfs.PathSpec) (*VolumeRecord, error) {
	records, err := volume.Records()
	if err != nil {
		return nil, err
	}
	bytesPerSector := volume.BytesPerSector()

	wantIndex, hasIndex := spec.PartIndex()
	wantOffset, hasOffset := spec.StartOffset()
	wantLocation := spec.Location()

	partitionIndex := 0
	for partIndex, record := range records {
		if record.Allocated {
			partitionIndex++
		}
		switch {
		case hasIndex:
			if partIndex == wantIndex {
				return record, nil
			}
		case wantLocation != "" && wantLocation != layerfs.LocationRoot:
			if record.Allocated && wantLocation == fmt.Sprintf("/p%d", partitionIndex) {
				return record, nil
			}
		case hasOffset:
			if record.StartSector != nil && wantOffset == *record.StartSector*bytesPerSector {
				return record, nil
			}
		}
	}
	return nil, nil
}

func isPartitionRoot(spec *layerfs.PathSpec) bool {
	if _, ok := spec.PartIndex(); ok {
		return false
	}
	if _, ok := spec.StartOffset(); ok {
		return false
	}
	return spec.Location() == layerfs.LocationRoot
}

type partitionFileEntry struct {
	fs         *partitionFileSystem
	spec       *layerfs.PathSpec
	state      layerfs.EntryState
	record     *VolumeRecord // native record, resolved lazily
	fileObject layerfs.FileObject
}

func (e *partitionFileEntry) Name() string { return e.spec.Basename() }

func (e *partitionFileEntry) PathSpec() *layerfs.PathSpec { return e.spec }

func (e *partitionFileEntry) State() layerfs.EntryState { return e.state }

// nativeRecord re-locates the entry's volume record on first use. A
// concrete entry whose record cannot be found is a consistency fault
// between the descriptor and the live volume, not a normal not-found.
func (e *partitionFileEntry) nativeRecord() (*VolumeRecord, error) {
	if e.record != nil {
		return e.record, nil
	}
	record, err := findVolumeRecord(e.fs.volume, e.spec)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &layerfs.BackendError{
			Type:   layerfs.TypePartition,
			Reason: "missing volume record in non-virtual file entry",
		}
	}
	e.record = record
	return record, nil
}

func (e *partitionFileEntry) Stat() (*layerfs.Stat, error) {
	if e.state != layerfs.EntryStateConcrete {
		// The root file entry is virtual and has no native record.
		return &layerfs.Stat{Type: layerfs.EntryTypeDirectory, IsAllocated: true}, nil
	}

	record, err := e.nativeRecord()
	if err != nil {
		return nil, err
	}
	stat := &layerfs.Stat{Type: layerfs.EntryTypeFile, IsAllocated: record.Allocated}
	if record.NumSectors != nil {
		stat.Size = util.Pointer(*record.NumSectors * e.fs.volume.BytesPerSector())
	}
	return stat, nil
}

// SubFileEntries yields a full entry per enumerated descriptor. Only the
// virtual root has children.
func (e *partitionFileEntry) SubFileEntries() iter.Seq2[layerfs.FileEntry, error] {
	return func(yield func(layerfs.FileEntry, error) bool) {
		if e.state != layerfs.EntryStateVirtualRoot {
			return
		}
		for spec, err := range e.fs.partitionSpecs() {
			if err != nil {
				yield(nil, err)
				return
			}
			entry := &partitionFileEntry{fs: e.fs, spec: spec, state: layerfs.EntryStateConcrete}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func (e *partitionFileEntry) GetFileObject() (layerfs.FileObject, error) {
	if e.fileObject != nil {
		return e.fileObject, nil
	}
	if e.state != layerfs.EntryStateConcrete {
		return nil, fmt.Errorf("no byte stream for directory entry %q", e.spec.Location())
	}
	record, err := e.nativeRecord()
	if err != nil {
		return nil, err
	}
	fileObject, err := newSectionFileObject(e.fs.parent, e.fs.volume, record, e.spec)
	if err != nil {
		return nil, err
	}
	e.fileObject = fileObject
	return e.fileObject, nil
}
