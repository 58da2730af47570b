// Package adapters ships the built-in layer adapters of the resolution
// engine. Each adapter satisfies the decoder contract by delegating the
// actual format work to an external engine: the operating system for raw
// storage, compression codecs for compressed streams, archive/tar for tar
// archives, and a pluggable volume-system decoder for partition tables.
package adapters

import (
	"fmt"
	"os"

	"github.com/brettbedarf/layerfs"
	"github.com/brettbedarf/layerfs/resolver"
)

// RegisterOS registers the raw-storage file-object factory. It is the only
// built-in parentless kind: the descriptor's location is a path meaningful
// to the operating system.
func RegisterOS(reg *resolver.Registry) {
	reg.RegisterFileObject(layerfs.TypeOS, func(parent layerfs.FileObject, spec *layerfs.PathSpec) (layerfs.FileObject, error) {
		if spec.Location() == "" {
			return nil, fmt.Errorf("os layer requires a location")
		}
		file, err := os.Open(spec.Location())
		if err != nil {
			return nil, err
		}
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, err
		}
		return &osFileObject{file: file, size: info.Size()}, nil
	})
}

// osFileObject reads directly from a local file.
type osFileObject struct {
	file *os.File
	size int64
}

func (f *osFileObject) Read(p []byte) (int, error) {
	return f.file.Read(p)
}

func (f *osFileObject) Seek(offset int64, whence int) (int64, error) {
	return f.file.Seek(offset, whence)
}

func (f *osFileObject) Size() (int64, error) {
	return f.size, nil
}

func (f *osFileObject) Close() error {
	return f.file.Close()
}
