package adapters

import (
	"fmt"
	"io"

	"github.com/brettbedarf/layerfs"
)

// newSectionFileObject builds the file object of one partition: a bounded
// view of the physical parent stream starting at the record's byte offset.
// The parent stream stays owned by whoever supplied it.
func newSectionFileObject(parent layerfs.FileObject, volume VolumeSystem, record *VolumeRecord, spec *layerfs.PathSpec) (layerfs.FileObject, error) {
	bytesPerSector := volume.BytesPerSector()

	offset, hasOffset := spec.StartOffset()
	if !hasOffset {
		if record.StartSector == nil {
			return nil, fmt.Errorf("partition descriptor carries no start offset and the record reports no start sector")
		}
		offset = *record.StartSector * bytesPerSector
	}

	var size int64
	if record.NumSectors != nil {
		size = *record.NumSectors * bytesPerSector
	} else {
		parentSize, err := parent.Size()
		if err != nil {
			return nil, err
		}
		size = parentSize - offset
	}
	if size < 0 {
		return nil, fmt.Errorf("partition extends past the end of the physical stream")
	}

	return &sectionFileObject{parent: parent, offset: offset, size: size}, nil
}

type sectionFileObject struct {
	parent layerfs.FileObject
	offset int64
	size   int64
	pos    int64
	closed bool
}

func (f *sectionFileObject) Read(p []byte) (int, error) {
	if f.closed {
		return 0, errClosed
	}
	if f.pos >= f.size {
		return 0, io.EOF
	}
	if remaining := f.size - f.pos; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	if _, err := f.parent.Seek(f.offset+f.pos, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := f.parent.Read(p)
	f.pos += int64(n)
	return n, err
}

func (f *sectionFileObject) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, errClosed
	}
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = f.pos + offset
	case io.SeekEnd:
		pos = f.size + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative seek position %d", pos)
	}
	f.pos = pos
	return pos, nil
}

func (f *sectionFileObject) Size() (int64, error) {
	if f.closed {
		return 0, errClosed
	}
	return f.size, nil
}

// Close marks the section unusable. The parent stream is not closed here;
// its lifetime belongs to the resolver context or file system that opened
// it.
func (f *sectionFileObject) Close() error {
	f.closed = true
	return nil
}
