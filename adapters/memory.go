package adapters

import (
	"bytes"
	"errors"
)

var errClosed = errors.New("file object is closed")

// memoryFileObject serves a fully decoded byte buffer. Compressed-stream
// layers and archive members decode into one of these so the handle is
// seekable regardless of the native decoder's streaming nature.
type memoryFileObject struct {
	reader *bytes.Reader
	closed bool
}

func newMemoryFileObject(data []byte) *memoryFileObject {
	return &memoryFileObject{reader: bytes.NewReader(data)}
}

func (f *memoryFileObject) Read(p []byte) (int, error) {
	if f.closed {
		return 0, errClosed
	}
	return f.reader.Read(p)
}

func (f *memoryFileObject) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, errClosed
	}
	return f.reader.Seek(offset, whence)
}

func (f *memoryFileObject) Size() (int64, error) {
	if f.closed {
		return 0, errClosed
	}
	return f.reader.Size(), nil
}

func (f *memoryFileObject) Close() error {
	f.closed = true
	f.reader = nil
	return nil
}
