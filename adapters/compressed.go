package adapters

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/brettbedarf/layerfs"
	"github.com/brettbedarf/layerfs/resolver"
)

// zstdDecoder is reused across opens to avoid repeated initialization
// overhead; zstd.Decoder is safe for concurrent use via DecodeAll.
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("adapters: zstd decoder initialization failed: " + err.Error())
	}
}

// RegisterCompressedStream registers the compressed-stream file-object
// factory. The descriptor's method attribute selects the decode engine
// (gzip, zstd or lz4). The stream is decoded eagerly into memory so the
// resulting handle is seekable; a corrupt stream therefore fails at open
// time, where the resolver tags it with the layer's kind and position.
func RegisterCompressedStream(reg *resolver.Registry) {
	reg.RegisterFileObject(layerfs.TypeCompressedStream, func(parent layerfs.FileObject, spec *layerfs.PathSpec) (layerfs.FileObject, error) {
		if _, err := parent.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		data, err := decompress(parent, spec.Method())
		if err != nil {
			return nil, err
		}
		return newMemoryFileObject(data), nil
	})
}

func decompress(parent io.Reader, method layerfs.CompressionMethod) ([]byte, error) {
	switch method {
	case layerfs.MethodGzip:
		reader, err := gzip.NewReader(parent)
		if err != nil {
			return nil, fmt.Errorf("gzip decompress: %w", err)
		}
		defer reader.Close()
		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip decompress: %w", err)
		}
		return data, nil

	case layerfs.MethodZstd:
		compressed, err := io.ReadAll(parent)
		if err != nil {
			return nil, err
		}
		data, err := zstdDecoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return data, nil

	case layerfs.MethodLZ4:
		data, err := io.ReadAll(lz4.NewReader(parent))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return data, nil

	default:
		return nil, fmt.Errorf("unsupported compression method %q", method)
	}
}
