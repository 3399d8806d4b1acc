package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/cubestream/cube"
	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
)

func testShape() cube.Shape {
	return cube.Shape{Width: 32, Height: 32, Channels: 8, Stokes: 2}
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	return New("test-session", SyntheticOpener(testShape()), nil)
}

func TestOpenFile(t *testing.T) {
	sess := newTestSession(t)

	f, err := sess.OpenFile(0, "/data", "cube.fits", "")
	require.NoError(t, err)
	assert.Equal(t, int32(0), f.ID())
	assert.Equal(t, testShape(), f.Shape())

	got, err := sess.File(0)
	require.NoError(t, err)
	assert.Same(t, f, got)
}

func TestOpenFile_DuplicateID(t *testing.T) {
	sess := newTestSession(t)

	_, err := sess.OpenFile(1, "/data", "a.fits", "")
	require.NoError(t, err)

	_, err = sess.OpenFile(1, "/data", "b.fits", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFileIDInUse)
}

func TestOpenFile_NegativeIDReserved(t *testing.T) {
	sess := newTestSession(t)
	_, err := sess.OpenFile(-5, "/data", "a.fits", "")
	assert.Error(t, err)
}

func TestFile_NotFoundMessage(t *testing.T) {
	sess := newTestSession(t)
	_, err := sess.File(7)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFileNotFound)
	assert.Contains(t, err.Error(), "File id 7 not found")
}

func TestCloseFile(t *testing.T) {
	sess := newTestSession(t)
	_, err := sess.OpenFile(0, "/data", "a.fits", "")
	require.NoError(t, err)

	closed, err := sess.CloseFile(0)
	require.NoError(t, err)
	assert.Equal(t, []int32{0}, closed)

	_, err = sess.File(0)
	assert.ErrorIs(t, err, errors.ErrFileNotFound)
}

func TestCloseFile_AllSentinel(t *testing.T) {
	sess := newTestSession(t)
	for id := int32(0); id < 3; id++ {
		_, err := sess.OpenFile(id, "/data", "a.fits", "")
		require.NoError(t, err)
	}

	closed, err := sess.CloseFile(message.FileIDAll)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2}, closed)
	assert.Empty(t, sess.FileIDs())
}

func TestOpenDerived_IDAllocation(t *testing.T) {
	sess := newTestSession(t)
	src, err := cube.NewSynthetic("derived", testShape())
	require.NoError(t, err)

	pv1, err := sess.OpenDerived(DerivedPv, "pv-1", src)
	require.NoError(t, err)
	pv2, err := sess.OpenDerived(DerivedPv, "pv-2", src)
	require.NoError(t, err)
	mom, err := sess.OpenDerived(DerivedMoment, "moment-1", src)
	require.NoError(t, err)

	assert.Equal(t, message.FileIDPvBase, pv1.ID())
	assert.Equal(t, message.FileIDPvBase-1, pv2.ID())
	assert.Equal(t, message.FileIDMomentBase, mom.ID())
	assert.True(t, message.IsDerivedFileID(pv1.ID()))
}

func TestSetView(t *testing.T) {
	sess := newTestSession(t)
	f, err := sess.OpenFile(0, "/data", "a.fits", "")
	require.NoError(t, err)

	require.NoError(t, f.SetView(3, 1))
	channel, stokes := f.View()
	assert.Equal(t, int32(3), channel)
	assert.Equal(t, int32(1), stokes)

	err = f.SetView(99, 0)
	assert.ErrorIs(t, err, errors.ErrChannelOutOfRange)
}

func TestSetRegion_AllocationIsMonotonic(t *testing.T) {
	sess := newTestSession(t)
	f, err := sess.OpenFile(0, "/data", "a.fits", "")
	require.NoError(t, err)

	rect := message.RegionInfo{
		RegionType:    message.RegionRectangle,
		ControlPoints: []message.Point{{X: 8, Y: 8}, {X: 4, Y: 4}},
	}

	id1, err := f.SetRegion(message.RegionIDNew, rect)
	require.NoError(t, err)
	id2, err := f.SetRegion(message.RegionIDNew, rect)
	require.NoError(t, err)
	assert.Equal(t, int32(1), id1)
	assert.Equal(t, int32(2), id2)

	// Removal must not recycle the id.
	require.NoError(t, f.RemoveRegion(id2))
	id3, err := f.SetRegion(message.RegionIDNew, rect)
	require.NoError(t, err)
	assert.Equal(t, int32(3), id3)
}

func TestSetRegion_MutateInPlace(t *testing.T) {
	sess := newTestSession(t)
	f, err := sess.OpenFile(0, "/data", "a.fits", "")
	require.NoError(t, err)

	rect := message.RegionInfo{
		RegionType:    message.RegionRectangle,
		ControlPoints: []message.Point{{X: 8, Y: 8}, {X: 4, Y: 4}},
	}
	id, err := f.SetRegion(message.RegionIDNew, rect)
	require.NoError(t, err)

	moved := rect
	moved.ControlPoints = []message.Point{{X: 16, Y: 16}, {X: 4, Y: 4}}
	got, err := f.SetRegion(id, moved)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	info, ok := f.Region(id)
	require.True(t, ok)
	assert.Equal(t, 16.0, info.ControlPoints[0].X)
}

func TestSetRegion_UnknownIDRejected(t *testing.T) {
	sess := newTestSession(t)
	f, err := sess.OpenFile(0, "/data", "a.fits", "")
	require.NoError(t, err)

	_, err = f.SetRegion(42, message.RegionInfo{
		RegionType:    message.RegionPoint,
		ControlPoints: []message.Point{{X: 1, Y: 1}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRegionNotFound)
	assert.Contains(t, err.Error(), "Region id 42 not found")
}

func TestSetRegion_InvalidGeometryRejected(t *testing.T) {
	sess := newTestSession(t)
	f, err := sess.OpenFile(0, "/data", "a.fits", "")
	require.NoError(t, err)

	_, err = f.SetRegion(message.RegionIDNew, message.RegionInfo{
		RegionType:    message.RegionPolygon,
		ControlPoints: []message.Point{{X: 1, Y: 1}},
	})
	assert.ErrorIs(t, err, errors.ErrInvalidGeometry)

	// A failed set must not allocate an id.
	id, err := f.SetRegion(message.RegionIDNew, message.RegionInfo{
		RegionType:    message.RegionPoint,
		ControlPoints: []message.Point{{X: 1, Y: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), id)
}

func TestPseudoRegionsImmutable(t *testing.T) {
	sess := newTestSession(t)
	f, err := sess.OpenFile(0, "/data", "a.fits", "")
	require.NoError(t, err)

	err = f.RemoveRegion(message.RegionIDCube)
	assert.ErrorIs(t, err, errors.ErrRegionImmutable)

	assert.True(t, f.HasRegion(message.RegionIDImage))
	assert.True(t, f.HasRegion(message.RegionIDCube))

	mask, err := f.RegionMask(message.RegionIDImage)
	require.NoError(t, err)
	assert.Equal(t, int(testShape().PixelsPerChannel()), mask.PixelCount())
}

func TestRequirements_SupersedeReporting(t *testing.T) {
	sess := newTestSession(t)
	f, err := sess.OpenFile(0, "/data", "a.fits", "")
	require.NoError(t, err)

	configs := []message.HistogramConfig{{Channel: -1, NumBins: -1}}
	assert.False(t, f.SetHistogramRequirements(message.RegionIDImage, configs))
	assert.True(t, f.SetHistogramRequirements(message.RegionIDImage, configs))

	assert.Len(t, f.HistogramRequirements(message.RegionIDImage), 1)

	// Clearing removes the subscription.
	assert.True(t, f.SetHistogramRequirements(message.RegionIDImage, nil))
	assert.Empty(t, f.HistogramRequirements(message.RegionIDImage))
}

func TestSessionClose(t *testing.T) {
	sess := newTestSession(t)
	_, err := sess.OpenFile(0, "/data", "a.fits", "")
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	assert.Empty(t, sess.FileIDs())

	_, err = sess.OpenFile(1, "/data", "b.fits", "")
	assert.ErrorIs(t, err, errors.ErrSessionClosed)
}
