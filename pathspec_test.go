package layerfs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettbedarf/layerfs/internal/util"
)

func TestNewPathSpec_ParentRequired(t *testing.T) {
	t.Parallel()

	// Every kind that decodes a byte stream must have a parent
	_, err := NewPathSpec(TypeTAR, nil, Attrs{Location: "/"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPathSpec)
}

func TestNewPathSpec_ParentlessKindRejectsParent(t *testing.T) {
	t.Parallel()

	parent := NewOSPathSpec("/tmp/image.raw")
	_, err := NewPathSpec(TypeOS, parent, Attrs{Location: "/tmp/other.raw"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPathSpec)
}

func TestNewPathSpec_UnknownType(t *testing.T) {
	t.Parallel()

	_, err := NewPathSpec("floppy", nil, Attrs{})
	assert.ErrorIs(t, err, ErrInvalidPathSpec)
}

func TestNewPathSpec_UnknownCompressionMethod(t *testing.T) {
	t.Parallel()

	parent := NewOSPathSpec("/tmp/image.gz")
	_, err := NewPathSpec(TypeCompressedStream, parent, Attrs{Method: "brotli"})
	assert.ErrorIs(t, err, ErrInvalidPathSpec)
}

func TestNewPathSpec_CopiesOptionalAttrs(t *testing.T) {
	t.Parallel()

	attrs := Attrs{PartIndex: util.Pointer(2), StartOffset: util.Pointer(int64(512))}
	spec, err := NewPathSpec(TypePartition, NewOSPathSpec("/tmp/disk.raw"), attrs)
	require.NoError(t, err)

	// Mutating the caller's Attrs must not reach the immutable spec
	*attrs.PartIndex = 9
	*attrs.StartOffset = 9

	idx, ok := spec.PartIndex()
	require.True(t, ok)
	assert.Equal(t, 2, idx)
	off, ok := spec.StartOffset()
	require.True(t, ok)
	assert.Equal(t, int64(512), off)
}

func TestPathSpec_EqualityProperties(t *testing.T) {
	t.Parallel()

	makeChain := func(location string) *PathSpec {
		os := NewOSPathSpec("/tmp/disk.raw")
		table, err := NewPathSpec(TypePartition, os, Attrs{Location: location})
		require.NoError(t, err)
		return table
	}

	a := makeChain("/p1")
	b := makeChain("/p1")
	c := makeChain("/p1")
	other := makeChain("/p2")

	// Reflexive, symmetric, transitive
	assert.True(t, a.Equal(a))
	assert.True(t, a.Equal(b))
	assert.True(t, b.Equal(a))
	assert.True(t, b.Equal(c))
	assert.True(t, a.Equal(c))

	// Differing only in a leaf attribute
	assert.False(t, a.Equal(other))
	// ...while the common ancestor keys still match
	assert.Equal(t, a.Parent().Key(), other.Parent().Key())
}

func TestPathSpec_EqualNil(t *testing.T) {
	t.Parallel()

	var nilSpec *PathSpec
	spec := NewOSPathSpec("/tmp/disk.raw")

	assert.True(t, nilSpec.Equal(nil))
	assert.False(t, spec.Equal(nil))
	assert.False(t, nilSpec.Equal(spec))
}

func TestPathSpec_Depth(t *testing.T) {
	t.Parallel()

	os := NewOSPathSpec("/tmp/disk.raw")
	assert.Equal(t, 0, os.Depth())

	gz, err := NewPathSpec(TypeCompressedStream, os, Attrs{Method: MethodGzip})
	require.NoError(t, err)
	archive, err := NewPathSpec(TypeTAR, gz, Attrs{Location: "/data/file.txt"})
	require.NoError(t, err)

	assert.Equal(t, 1, gz.Depth())
	assert.Equal(t, 2, archive.Depth())
}

func TestPathSpec_Basename(t *testing.T) {
	t.Parallel()

	os := NewOSPathSpec("/tmp/disk.raw")
	table, err := NewPathSpec(TypePartition, os, Attrs{Location: "/p1"})
	require.NoError(t, err)
	root, err := table.ContainerRoot()
	require.NoError(t, err)
	noLocation, err := NewPathSpec(TypePartition, os, Attrs{PartIndex: util.Pointer(1)})
	require.NoError(t, err)

	assert.Equal(t, "p1", table.Basename())
	assert.Equal(t, "", root.Basename())
	assert.Equal(t, "", noLocation.Basename())
}

func TestPathSpec_ContainerRootSharedBySiblings(t *testing.T) {
	t.Parallel()

	os := NewOSPathSpec("/tmp/disk.raw")
	p1, err := NewPathSpec(TypePartition, os, Attrs{Location: "/p1"})
	require.NoError(t, err)
	p2, err := NewPathSpec(TypePartition, os, Attrs{Location: "/p2"})
	require.NoError(t, err)

	root1, err := p1.ContainerRoot()
	require.NoError(t, err)
	root2, err := p2.ContainerRoot()
	require.NoError(t, err)

	assert.True(t, root1.Equal(root2), "siblings must share one container root")
}

func TestPathSpec_ValidateZeroValue(t *testing.T) {
	t.Parallel()

	var spec PathSpec
	err := spec.Validate()
	assert.ErrorIs(t, err, ErrInvalidPathSpec)

	var nilSpec *PathSpec
	assert.ErrorIs(t, nilSpec.Validate(), ErrInvalidPathSpec)
}

func TestPathSpec_KeyDistinguishesAttributes(t *testing.T) {
	t.Parallel()

	os := NewOSPathSpec("/tmp/disk.raw")
	byIndex, err := NewPathSpec(TypePartition, os, Attrs{PartIndex: util.Pointer(0)})
	require.NoError(t, err)
	byOffset, err := NewPathSpec(TypePartition, os, Attrs{StartOffset: util.Pointer(int64(0))})
	require.NoError(t, err)

	assert.NotEqual(t, byIndex.Key(), byOffset.Key())
}

func TestDecodeError_WrapsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("bad magic")
	err := &DecodeError{Type: TypeTAR, Depth: 2, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "tar")
	assert.Contains(t, err.Error(), "depth 2")
}

func TestBackendError_MatchesSentinel(t *testing.T) {
	t.Parallel()

	err := &BackendError{Type: TypePartition, Reason: "record vanished"}
	assert.ErrorIs(t, err, ErrBackendInvariant)
}
