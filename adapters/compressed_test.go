package adapters

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettbedarf/layerfs"
	"github.com/brettbedarf/layerfs/resolver"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func lz4Bytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecompress(t *testing.T) {
	t.Parallel()

	plain := []byte("the quick brown fox jumps over the lazy dog")

	tests := []struct {
		name       string
		method     layerfs.CompressionMethod
		compressed []byte
	}{
		{"gzip", layerfs.MethodGzip, gzipBytes(t, plain)},
		{"zstd", layerfs.MethodZstd, zstdBytes(t, plain)},
		{"lz4", layerfs.MethodLZ4, lz4Bytes(t, plain)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data, err := decompress(bytes.NewReader(tt.compressed), tt.method)
			require.NoError(t, err)
			assert.Equal(t, plain, data)
		})
	}
}

func TestDecompress_CorruptStream(t *testing.T) {
	t.Parallel()

	garbage := []byte("this is not a compressed stream")
	for _, method := range []layerfs.CompressionMethod{layerfs.MethodGzip, layerfs.MethodZstd, layerfs.MethodLZ4} {
		_, err := decompress(bytes.NewReader(garbage), method)
		assert.Error(t, err, string(method))
	}
}

func TestCompressedStream_ResolvedHandleIsSeekable(t *testing.T) {
	t.Parallel()

	plain := []byte("abcdefghijklmnopqrstuvwxyz")
	reg := resolver.NewRegistry()
	RegisterCompressedStream(reg)
	reg.RegisterFileObject(layerfs.TypeOS, func(parent layerfs.FileObject, spec *layerfs.PathSpec) (layerfs.FileObject, error) {
		return newMemoryFileObject(gzipBytes(t, plain)), nil
	})

	r := resolver.New(reg)
	rc := resolver.NewContext(nil)

	parent := layerfs.NewOSPathSpec("/tmp/alphabet.gz")
	spec, err := layerfs.NewPathSpec(layerfs.TypeCompressedStream, parent, layerfs.Attrs{Method: layerfs.MethodGzip})
	require.NoError(t, err)

	obj, err := r.OpenFileObject(rc, spec)
	require.NoError(t, err)

	size, err := obj.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(len(plain)), size)

	// Seek backwards, which the native decoder cannot do.
	_, err = obj.Seek(10, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, "klmnopqrstuvwxyz", string(rest))
	_, err = obj.Seek(0, io.SeekStart)
	require.NoError(t, err)
	all, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, plain, all)

	require.NoError(t, rc.ReleaseFileObject(spec))
	assert.True(t, rc.Empty())
}

func TestCompressedStream_CorruptStreamTaggedByResolver(t *testing.T) {
	t.Parallel()

	reg := resolver.NewRegistry()
	RegisterCompressedStream(reg)
	reg.RegisterFileObject(layerfs.TypeOS, func(parent layerfs.FileObject, spec *layerfs.PathSpec) (layerfs.FileObject, error) {
		return newMemoryFileObject([]byte("garbage")), nil
	})

	r := resolver.New(reg)
	rc := resolver.NewContext(nil)

	parent := layerfs.NewOSPathSpec("/tmp/garbage.gz")
	spec, err := layerfs.NewPathSpec(layerfs.TypeCompressedStream, parent, layerfs.Attrs{Method: layerfs.MethodGzip})
	require.NoError(t, err)

	_, err = r.OpenFileObject(rc, spec)
	require.Error(t, err)

	var decodeErr *layerfs.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, layerfs.TypeCompressedStream, decodeErr.Type)
	assert.Equal(t, 1, decodeErr.Depth)
	assert.True(t, rc.Empty())
}
