package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/cubestream/cube"
	"github.com/c360/cubestream/message"
	"github.com/c360/cubestream/session"
)

func lineRegion() message.RegionInfo {
	return message.RegionInfo{
		RegionType:    message.RegionLine,
		ControlPoints: []message.Point{{X: 4, Y: 4}, {X: 50, Y: 50}},
	}
}

func TestDispatch_PvGenerationEndToEnd(t *testing.T) {
	d, log := newTestDispatcher(t, session.SyntheticOpener(dispatchShape()))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")
	regionID := setRegion(t, d, log, 1, message.RegionIDNew, lineRegion())

	d.Dispatch(context.Background(), message.MustFrame(message.EventPvRequest, 20, message.PvRequest{
		FileID:   1,
		RegionID: regionID,
		Width:    3,
	}))

	resp := decodePayload[message.PvResponse](t, log.waitFor(t, message.EventPvResponse))
	require.True(t, resp.Success, resp.Message)
	require.NotNil(t, resp.OpenFileAck)
	assert.LessOrEqual(t, resp.OpenFileAck.FileID, message.FileIDPvBase)
	require.Len(t, resp.OpenFileAck.Shape, 4)
	assert.Equal(t, int32(8), resp.OpenFileAck.Shape[1], "height is the channel count")

	// Progress drains at lower priority than the response; wait for the
	// terminal 1.0 report.
	deadline := time.Now().Add(5 * time.Second)
	for {
		frames := log.ofType(message.EventPvProgress)
		if n := len(frames); n > 0 {
			last := decodePayload[message.PvProgress](t, frames[n-1])
			if last.Progress == 1.0 {
				break
			}
		}
		require.True(t, time.Now().Before(deadline), "terminal progress never arrived")
		time.Sleep(5 * time.Millisecond)
	}
	prev := 0.0
	for _, frame := range log.ofType(message.EventPvProgress) {
		p := decodePayload[message.PvProgress](t, frame)
		assert.GreaterOrEqual(t, p.Progress, prev)
		prev = p.Progress
	}

	// The derived image announces itself with exactly one histogram.
	time.Sleep(50 * time.Millisecond)
	count := 0
	for _, frame := range log.ofType(message.EventRegionHistogramData) {
		h := decodePayload[message.RegionHistogramData](t, frame)
		if h.FileID == resp.OpenFileAck.FileID {
			count++
			assert.Equal(t, 1.0, h.Progress)
			assert.NotEmpty(t, h.Bins)
		}
	}
	assert.Equal(t, 1, count)
}

func TestDispatch_PvRequestValidation(t *testing.T) {
	d, log := newTestDispatcher(t, session.SyntheticOpener(dispatchShape()))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")
	rectID := setRegion(t, d, log, 1, message.RegionIDNew, message.RegionInfo{
		RegionType:    message.RegionRectangle,
		ControlPoints: []message.Point{{X: 16, Y: 16}, {X: 8, Y: 8}},
	})

	d.Dispatch(context.Background(), message.MustFrame(message.EventPvRequest, 21, message.PvRequest{
		FileID:   1,
		RegionID: rectID,
		Width:    3,
	}))
	resp := decodePayload[message.PvResponse](t, log.waitFor(t, message.EventPvResponse))
	require.False(t, resp.Success)
	assert.Contains(t, resp.Message, "needs a line region")

	lineID := setRegion(t, d, log, 1, message.RegionIDNew, lineRegion())
	d.Dispatch(context.Background(), message.MustFrame(message.EventPvRequest, 22, message.PvRequest{
		FileID:   1,
		RegionID: lineID,
		Width:    0,
	}))
	resps := log.waitForCount(t, message.EventPvResponse, 2)
	resp = decodePayload[message.PvResponse](t, resps[1])
	require.False(t, resp.Success)
	assert.Contains(t, resp.Message, "Invalid averaging width")
}

func TestDispatch_MomentCancellation(t *testing.T) {
	shape := cube.Shape{Width: 32, Height: 32, Channels: 32, Stokes: 1}
	d, log := newTestDispatcher(t, slowOpener(shape, 5*time.Millisecond))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")

	d.Dispatch(context.Background(), message.MustFrame(message.EventMomentRequest, 30, message.MomentRequest{
		FileID:   1,
		RegionID: message.RegionIDImage,
		Moments:  []message.MomentType{message.MomentMean, message.MomentIntegrated},
	}))
	log.waitForCount(t, message.EventMomentProgress, 3)

	d.Dispatch(context.Background(),
		message.MustFrame(message.EventStopMomentCalc, 31, message.StopMomentCalc{FileID: 1}))

	resp := decodePayload[message.MomentResponse](t, log.waitFor(t, message.EventMomentResponse))
	assert.True(t, resp.Success)
	assert.True(t, resp.Cancel)
	assert.Empty(t, resp.OpenFileAcks)

	// Let in-flight progress drain, then verify the stream went quiet
	// below 1.0.
	time.Sleep(100 * time.Millisecond)
	frames := log.ofType(message.EventMomentProgress)
	for _, frame := range frames {
		p := decodePayload[message.MomentProgress](t, frame)
		assert.Less(t, p.Progress, 1.0)
	}
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, log.ofType(message.EventMomentProgress), len(frames),
		"progress kept flowing after cancellation")
}

func TestDispatch_MomentSuccessOpensDerivedFiles(t *testing.T) {
	d, log := newTestDispatcher(t, session.SyntheticOpener(dispatchShape()))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")

	d.Dispatch(context.Background(), message.MustFrame(message.EventMomentRequest, 32, message.MomentRequest{
		FileID:   1,
		RegionID: message.RegionIDImage,
		Moments:  []message.MomentType{message.MomentMean, message.MomentMax},
	}))

	resp := decodePayload[message.MomentResponse](t, log.waitFor(t, message.EventMomentResponse))
	require.True(t, resp.Success, resp.Message)
	assert.False(t, resp.Cancel)
	require.Len(t, resp.OpenFileAcks, 2)
	for _, ack := range resp.OpenFileAcks {
		assert.True(t, ack.Success)
		assert.LessOrEqual(t, ack.FileID, message.FileIDMomentBase)
	}
	assert.NotEqual(t, resp.OpenFileAcks[0].FileID, resp.OpenFileAcks[1].FileID)
}

func TestDispatch_ConcatStokesRejections(t *testing.T) {
	shapes := map[string]cube.Shape{
		"cube_A_00512_z00064.image": dispatchShape(),
		"I.image":                   {Width: 64, Height: 64, Channels: 8, Stokes: 1},
		"I_copy.image":              {Width: 64, Height: 64, Channels: 8, Stokes: 1},
		"Q.image":                   {Width: 32, Height: 32, Channels: 8, Stokes: 1},
	}
	d, log := newTestDispatcher(t, shapedOpener(shapes))

	d.Dispatch(context.Background(), message.MustFrame(message.EventConcatStokesFiles, 40, message.ConcatStokesFiles{
		FileID: 5,
		Files: []message.StokesFileSource{
			{Directory: "data", File: "I.image", StokesType: "I"},
			{Directory: "data", File: "I_copy.image", StokesType: "I"},
		},
	}))
	ack := decodePayload[message.ConcatStokesFilesAck](t, log.waitFor(t, message.EventConcatStokesFilesAck))
	require.False(t, ack.Success)
	assert.Contains(t, ack.Message, "Duplicate Stokes type found")

	d.Dispatch(context.Background(), message.MustFrame(message.EventConcatStokesFiles, 41, message.ConcatStokesFiles{
		FileID: 5,
		Files: []message.StokesFileSource{
			{Directory: "data", File: "I.image", StokesType: "I"},
			{Directory: "data", File: "Q.image", StokesType: "Q"},
		},
	}))
	acks := log.waitForCount(t, message.EventConcatStokesFilesAck, 2)
	ack = decodePayload[message.ConcatStokesFilesAck](t, acks[1])
	require.False(t, ack.Success)
	assert.Contains(t, ack.Message, "are not consistent!")
}

func TestDispatch_ConcatStokesSuccess(t *testing.T) {
	shapes := map[string]cube.Shape{
		"I.image": {Width: 48, Height: 48, Channels: 4, Stokes: 1},
		"Q.image": {Width: 48, Height: 48, Channels: 4, Stokes: 1},
	}
	d, log := newTestDispatcher(t, shapedOpener(shapes))

	d.Dispatch(context.Background(), message.MustFrame(message.EventConcatStokesFiles, 42, message.ConcatStokesFiles{
		FileID: 5,
		Files: []message.StokesFileSource{
			{Directory: "data", File: "Q.image", StokesType: "Q"},
			{Directory: "data", File: "I.image", StokesType: "I"},
		},
	}))
	ack := decodePayload[message.ConcatStokesFilesAck](t, log.waitFor(t, message.EventConcatStokesFilesAck))
	require.True(t, ack.Success, ack.Message)
	assert.Equal(t, int32(5), ack.FileID)
	assert.Equal(t, []int32{48, 48, 4, 2}, ack.Shape)
}

func TestDispatch_FittingRequestSucceeds(t *testing.T) {
	d, log := newTestDispatcher(t, session.SyntheticOpener(dispatchShape()))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")

	d.Dispatch(context.Background(), message.MustFrame(message.EventFittingRequest, 50, message.FittingRequest{
		FileID:   1,
		RegionID: message.RegionIDImage,
	}))

	resp := decodePayload[message.FittingResponse](t, log.waitFor(t, message.EventFittingResponse))
	require.True(t, resp.Success, resp.Message)
	assert.False(t, resp.Cancel)
	if assert.NotEmpty(t, resp.Results) {
		c := resp.Results[0]
		assert.Greater(t, c.FwhmX, 0.0)
		assert.Greater(t, c.FwhmY, 0.0)
	}
}

func TestDispatch_PvPreviewRegeneratesOnRegionMove(t *testing.T) {
	d, log := newTestDispatcher(t, session.SyntheticOpener(dispatchShape()))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")
	regionID := setRegion(t, d, log, 1, message.RegionIDNew, lineRegion())

	d.Dispatch(context.Background(), message.MustFrame(message.EventPvRequest, 60, message.PvRequest{
		FileID:    1,
		RegionID:  regionID,
		Width:     1,
		Preview:   true,
		PreviewID: 7,
	}))
	resp := decodePayload[message.PvResponse](t, log.waitFor(t, message.EventPvResponse))
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, int32(7), resp.PreviewID)
	assert.Nil(t, resp.OpenFileAck, "previews do not open derived files")

	// Moving the line re-runs the stored preview request.
	moved := lineRegion()
	moved.ControlPoints[1] = message.Point{X: 30, Y: 60}
	setRegion(t, d, log, 1, regionID, moved)

	resps := log.waitForCount(t, message.EventPvResponse, 2)
	resp = decodePayload[message.PvResponse](t, resps[1])
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, int32(7), resp.PreviewID)

	// Closing the preview stops regeneration.
	d.Dispatch(context.Background(),
		message.MustFrame(message.EventClosePvPreview, 61, message.ClosePvPreview{PreviewID: 7}))
	time.Sleep(50 * time.Millisecond)
	before := len(log.ofType(message.EventPvResponse))
	setRegion(t, d, log, 1, regionID, lineRegion())
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, log.ofType(message.EventPvResponse), before)
}
