package dispatch

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/cubestream/cube"
	"github.com/c360/cubestream/message"
	"github.com/c360/cubestream/session"
)

// waitForTerminal polls until a frame of the given type decodes with
// progress 1.0, returning it.
func waitForTerminalHistogram(t *testing.T, log *frameLog, regionID int32) message.RegionHistogramData {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, frame := range log.ofType(message.EventRegionHistogramData) {
			h := decodePayload[message.RegionHistogramData](t, frame)
			if h.RegionID == regionID && h.Progress == 1.0 {
				return h
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("terminal cube histogram never arrived")
	return message.RegionHistogramData{}
}

func TestDispatch_CubeHistogramSupersession(t *testing.T) {
	shape := cube.Shape{Width: 32, Height: 32, Channels: 16, Stokes: 1}
	d, log := newTestDispatcher(t, slowOpener(shape, 3*time.Millisecond))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")

	cubeCfg := message.HistogramConfig{Channel: message.ChannelCube, NumBins: -1}
	d.Dispatch(context.Background(), message.MustFrame(message.EventSetHistogramRequirements, 70, message.SetHistogramRequirements{
		FileID:     1,
		RegionID:   message.RegionIDCube,
		Histograms: []message.HistogramConfig{cubeCfg},
	}))
	// Replace the subscription while the first job is still running.
	time.Sleep(10 * time.Millisecond)
	d.Dispatch(context.Background(), message.MustFrame(message.EventSetHistogramRequirements, 71, message.SetHistogramRequirements{
		FileID:     1,
		RegionID:   message.RegionIDCube,
		Histograms: []message.HistogramConfig{cubeCfg},
	}))

	h := waitForTerminalHistogram(t, log, message.RegionIDCube)
	assert.NotEmpty(t, h.Bins)
	assert.Equal(t, message.ChannelCube, h.Channel)

	// Only the surviving job may deliver a terminal histogram.
	time.Sleep(150 * time.Millisecond)
	terminal := 0
	for _, frame := range log.ofType(message.EventRegionHistogramData) {
		got := decodePayload[message.RegionHistogramData](t, frame)
		if got.RegionID == message.RegionIDCube {
			if got.Progress == 1.0 {
				terminal++
			} else {
				assert.Empty(t, got.Bins, "partial reports carry no bins")
			}
		}
	}
	assert.Equal(t, 1, terminal)
}

func TestDispatch_SpectralProfileDelivery(t *testing.T) {
	d, log := newTestDispatcher(t, session.SyntheticOpener(dispatchShape()))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")

	d.Dispatch(context.Background(), message.MustFrame(message.EventSetSpectralRequirements, 72, message.SetSpectralRequirements{
		FileID:   1,
		RegionID: message.RegionIDImage,
		Profiles: []message.SpectralProfileSpec{{
			Coordinate: "z",
			StatsTypes: []message.StatsType{message.StatsMean, message.StatsMax},
		}},
	}))

	var terminal message.SpectralProfileData
	deadline := time.Now().Add(5 * time.Second)
	for {
		found := false
		for _, frame := range log.ofType(message.EventSpectralProfileData) {
			p := decodePayload[message.SpectralProfileData](t, frame)
			if p.Progress == 1.0 {
				terminal = p
				found = true
			}
		}
		if found {
			break
		}
		require.True(t, time.Now().Before(deadline), "terminal spectral profile never arrived")
		time.Sleep(5 * time.Millisecond)
	}

	require.Len(t, terminal.Profiles, 2)
	for _, profile := range terminal.Profiles {
		assert.Len(t, profile.Values, 8)
	}
	assert.Equal(t, message.StatsMean, terminal.Profiles[0].StatsType)
	assert.Equal(t, message.StatsMax, terminal.Profiles[1].StatsType)
	for i, v := range terminal.Profiles[0].Values {
		assert.LessOrEqual(t, v, terminal.Profiles[1].Values[i], "mean exceeds max in channel %d", i)
	}
}

func waitForTerminalProfile(t *testing.T, log *frameLog, regionID int32) message.SpectralProfileData {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, frame := range log.ofType(message.EventSpectralProfileData) {
			p := decodePayload[message.SpectralProfileData](t, frame)
			if p.RegionID == regionID && p.Progress == 1.0 {
				return p
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("terminal spectral profile for region %d never arrived", regionID)
	return message.SpectralProfileData{}
}

func TestDispatch_SpectralProfilesPerRegionIndependent(t *testing.T) {
	shape := cube.Shape{Width: 32, Height: 32, Channels: 16, Stokes: 1}
	d, log := newTestDispatcher(t, slowOpener(shape, 3*time.Millisecond))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")

	rect := message.RegionInfo{
		RegionType:    message.RegionRectangle,
		ControlPoints: []message.Point{{X: 16, Y: 16}, {X: 8, Y: 8}},
	}
	regionA := setRegion(t, d, log, 1, message.RegionIDNew, rect)
	regionB := setRegion(t, d, log, 1, message.RegionIDNew, rect)

	spec := []message.SpectralProfileSpec{{
		Coordinate: "z",
		StatsTypes: []message.StatsType{message.StatsMean},
	}}
	d.Dispatch(context.Background(), message.MustFrame(message.EventSetSpectralRequirements, 77, message.SetSpectralRequirements{
		FileID:   1,
		RegionID: regionA,
		Profiles: spec,
	}))
	// Subscribing the second region while the first region's job is
	// still running must not starve the first subscription.
	d.Dispatch(context.Background(), message.MustFrame(message.EventSetSpectralRequirements, 78, message.SetSpectralRequirements{
		FileID:   1,
		RegionID: regionB,
		Profiles: spec,
	}))

	terminalA := waitForTerminalProfile(t, log, regionA)
	terminalB := waitForTerminalProfile(t, log, regionB)
	require.Len(t, terminalA.Profiles, 1)
	require.Len(t, terminalB.Profiles, 1)
	assert.Len(t, terminalA.Profiles[0].Values, 16)
	assert.Len(t, terminalB.Profiles[0].Values, 16)
}

func TestDispatch_HistogramRequirementsUnknownRegion(t *testing.T) {
	d, log := newTestDispatcher(t, session.SyntheticOpener(dispatchShape()))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")

	d.Dispatch(context.Background(), message.MustFrame(message.EventSetHistogramRequirements, 73, message.SetHistogramRequirements{
		FileID:     1,
		RegionID:   42,
		Histograms: []message.HistogramConfig{{Channel: message.ChannelCurrent, NumBins: -1}},
	}))
	errData := decodePayload[message.ErrorData](t, log.waitFor(t, message.EventErrorData))
	assert.Contains(t, errData.Message, "Region id 42 not found")
}

func TestDispatch_ContourDataPerLevel(t *testing.T) {
	d, log := newTestDispatcher(t, session.SyntheticOpener(dispatchShape()))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")

	d.Dispatch(context.Background(), message.MustFrame(message.EventSetContourParameters, 74, message.SetContourParameters{
		FileID: 1,
		Levels: []float64{0.25, 0.5},
	}))

	frames := log.waitForCount(t, message.EventContourImageData, 2)
	levels := make([]float64, 0, 2)
	for _, frame := range frames {
		c := decodePayload[message.ContourImageData](t, frame)
		assert.Equal(t, 1.0, c.Progress)
		assert.Zero(t, len(c.Vertices)%2, "vertices are x,y interleaved")
		levels = append(levels, c.Level)
	}
	assert.ElementsMatch(t, []float64{0.25, 0.5}, levels)
}

func TestDispatch_VectorOverlayRequiresStokesPlanes(t *testing.T) {
	shapes := map[string]cube.Shape{
		"full_pol.image": {Width: 16, Height: 16, Channels: 2, Stokes: 4},
		"single.image":   {Width: 16, Height: 16, Channels: 2, Stokes: 1},
	}
	d, log := newTestDispatcher(t, shapedOpener(shapes))
	openTestFile(t, d, log, 1, "full_pol.image")
	openTestFile(t, d, log, 2, "single.image")

	d.Dispatch(context.Background(), message.MustFrame(message.EventSetVectorOverlayParameters, 75, message.SetVectorOverlayParameters{
		FileID: 1,
	}))
	data := decodePayload[message.VectorOverlayTileData](t, log.waitFor(t, message.EventVectorOverlayTileData))
	assert.Equal(t, 1.0, data.Progress)
	require.Len(t, data.Intensity, 16*16)
	require.Len(t, data.Angle, 16*16)
	for i := range data.Intensity {
		if math.IsNaN(data.Intensity[i]) {
			continue
		}
		assert.GreaterOrEqual(t, data.Intensity[i], 0.0)
	}

	d.Dispatch(context.Background(), message.MustFrame(message.EventSetVectorOverlayParameters, 76, message.SetVectorOverlayParameters{
		FileID: 2,
	}))
	errData := decodePayload[message.ErrorData](t, log.waitFor(t, message.EventErrorData))
	assert.Contains(t, errData.Message, "no Stokes Q/U planes")
}
