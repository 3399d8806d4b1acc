package session

import (
	"sort"
	"sync"

	"github.com/c360/cubestream/cube"
	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
)

// File is one open cube inside a session: the data source, the current
// view position, the regions defined on it, and the requirement
// subscriptions that drive streamed computations.
type File struct {
	id        int32
	directory string
	name      string
	hdu       string
	source    cube.Source

	mu           sync.RWMutex
	channel      int32
	stokes       int32
	cursorX      float64
	cursorY      float64
	regions      map[int32]message.RegionInfo
	nextRegionID int32

	tiles      *message.AddRequiredTiles
	histograms map[int32][]message.HistogramConfig
	spatial    map[int32][]message.SpatialProfileSpec
	spectral   map[int32][]message.SpectralProfileSpec
	stats      map[int32][]message.StatsType
	contours   *message.SetContourParameters
	vectors    *message.SetVectorOverlayParameters
}

func newFile(id int32, directory, name, hdu string, source cube.Source) *File {
	return &File{
		id:           id,
		directory:    directory,
		name:         name,
		hdu:          hdu,
		source:       source,
		nextRegionID: 1,
		regions:      make(map[int32]message.RegionInfo),
		histograms:   make(map[int32][]message.HistogramConfig),
		spatial:      make(map[int32][]message.SpatialProfileSpec),
		spectral:     make(map[int32][]message.SpectralProfileSpec),
		stats:        make(map[int32][]message.StatsType),
	}
}

// ID returns the file id.
func (f *File) ID() int32 { return f.id }

// Source returns the backing cube data source.
func (f *File) Source() cube.Source { return f.source }

// Shape returns the cube dimensions.
func (f *File) Shape() cube.Shape { return f.source.Shape() }

// Info summarizes the file for acks.
func (f *File) Info() message.FileInfo {
	return message.FileInfo{Name: f.name, Type: "cube"}
}

// View returns the current channel and stokes.
func (f *File) View() (channel, stokes int32) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.channel, f.stokes
}

// SetView moves the current channel and stokes.
func (f *File) SetView(channel, stokes int32) error {
	shape := f.source.Shape()
	if !shape.ValidChannel(channel) || !shape.ValidStokes(stokes) {
		return rejectf(errors.ErrChannelOutOfRange,
			"Channel %d stokes %d out of range for file id %d", channel, stokes, f.id)
	}
	f.mu.Lock()
	f.channel = channel
	f.stokes = stokes
	f.mu.Unlock()
	return nil
}

// Cursor returns the current cursor position.
func (f *File) Cursor() (x, y float64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cursorX, f.cursorY
}

// SetCursor moves the cursor. Out-of-image positions are allowed; profile
// computations report the error at computation time.
func (f *File) SetCursor(x, y float64) {
	f.mu.Lock()
	f.cursorX = x
	f.cursorY = y
	f.mu.Unlock()
}

// SetRegion creates or mutates a region. RegionIDNew allocates a fresh id
// one greater than any id previously allocated on this file; an existing
// positive id mutates that region in place. Pseudo-region ids are
// rejected.
func (f *File) SetRegion(regionID int32, info message.RegionInfo) (int32, error) {
	if err := validateRegionInfo(info); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if regionID == message.RegionIDNew {
		regionID = f.nextRegionID
		f.nextRegionID++
		f.regions[regionID] = info
		return regionID, nil
	}
	if regionID < 0 {
		return 0, rejectf(errors.ErrRegionImmutable,
			"Region id %d is reserved and cannot be set", regionID)
	}
	if _, ok := f.regions[regionID]; !ok {
		return 0, rejectf(errors.ErrRegionNotFound,
			"Region id %d not found", regionID)
	}
	f.regions[regionID] = info
	return regionID, nil
}

// RemoveRegion deletes a client-created region. The id is not returned to
// the allocator.
func (f *File) RemoveRegion(regionID int32) error {
	if regionID < 0 {
		return rejectf(errors.ErrRegionImmutable,
			"Region id %d is reserved and cannot be removed", regionID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.regions[regionID]; !ok {
		return rejectf(errors.ErrRegionNotFound, "Region id %d not found", regionID)
	}
	delete(f.regions, regionID)
	return nil
}

// Region returns a region's geometry.
func (f *File) Region(regionID int32) (message.RegionInfo, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	info, ok := f.regions[regionID]
	return info, ok
}

// HasRegion reports whether the id names a client region or a
// pseudo-region.
func (f *File) HasRegion(regionID int32) bool {
	if regionID == message.RegionIDImage || regionID == message.RegionIDCube {
		return true
	}
	_, ok := f.Region(regionID)
	return ok
}

// Regions returns a copy of the region table.
func (f *File) Regions() map[int32]message.RegionInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[int32]message.RegionInfo, len(f.regions))
	for id, info := range f.regions {
		out[id] = info
	}
	return out
}

// restoreRegion reinstates a region under its original id during resume
// and advances the allocator past it.
func (f *File) restoreRegion(regionID int32, info message.RegionInfo) error {
	if regionID < 1 {
		return rejectf(errors.ErrRegionImmutable,
			"Region id %d cannot be restored", regionID)
	}
	if err := validateRegionInfo(info); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regions[regionID] = info
	if regionID >= f.nextRegionID {
		f.nextRegionID = regionID + 1
	}
	return nil
}

// SetRequiredTiles replaces the tile requirement for the current view.
func (f *File) SetRequiredTiles(req message.AddRequiredTiles) {
	f.mu.Lock()
	f.tiles = &req
	f.mu.Unlock()
}

// RequiredTiles returns the current tile requirement, if any.
func (f *File) RequiredTiles() (message.AddRequiredTiles, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.tiles == nil {
		return message.AddRequiredTiles{}, false
	}
	return *f.tiles, true
}

// SetHistogramRequirements replaces the histogram subscription for a
// region. It returns true when an earlier subscription was superseded, so
// the caller can cancel its in-flight computation.
func (f *File) SetHistogramRequirements(regionID int32, configs []message.HistogramConfig) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, had := f.histograms[regionID]
	if len(configs) == 0 {
		delete(f.histograms, regionID)
		return had
	}
	f.histograms[regionID] = configs
	return had
}

// HistogramRequirements returns the histogram subscription for a region.
func (f *File) HistogramRequirements(regionID int32) []message.HistogramConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.histograms[regionID]
}

// SetSpatialRequirements replaces the spatial profile subscription for a
// region.
func (f *File) SetSpatialRequirements(regionID int32, profiles []message.SpatialProfileSpec) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, had := f.spatial[regionID]
	if len(profiles) == 0 {
		delete(f.spatial, regionID)
		return had
	}
	f.spatial[regionID] = profiles
	return had
}

// SpatialRequirements returns the spatial profile subscription for a region.
func (f *File) SpatialRequirements(regionID int32) []message.SpatialProfileSpec {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.spatial[regionID]
}

// SetSpectralRequirements replaces the spectral profile subscription for a
// region.
func (f *File) SetSpectralRequirements(regionID int32, profiles []message.SpectralProfileSpec) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, had := f.spectral[regionID]
	if len(profiles) == 0 {
		delete(f.spectral, regionID)
		return had
	}
	f.spectral[regionID] = profiles
	return had
}

// SpectralRequirements returns the spectral profile subscription for a region.
func (f *File) SpectralRequirements(regionID int32) []message.SpectralProfileSpec {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.spectral[regionID]
}

// SpatialSubscriptionIDs returns the region ids holding spatial profile
// subscriptions, in ascending order.
func (f *File) SpatialSubscriptionIDs() []int32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedKeys(f.spatial)
}

// HistogramSubscriptionIDs returns the region ids holding histogram
// subscriptions, in ascending order.
func (f *File) HistogramSubscriptionIDs() []int32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedKeys(f.histograms)
}

// StatsSubscriptionIDs returns the region ids holding statistics
// subscriptions, in ascending order.
func (f *File) StatsSubscriptionIDs() []int32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedKeys(f.stats)
}

func sortedKeys[V any](m map[int32]V) []int32 {
	ids := make([]int32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetStatsRequirements replaces the statistics subscription for a region.
func (f *File) SetStatsRequirements(regionID int32, types []message.StatsType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, had := f.stats[regionID]
	if len(types) == 0 {
		delete(f.stats, regionID)
		return had
	}
	f.stats[regionID] = types
	return had
}

// StatsRequirements returns the statistics subscription for a region.
func (f *File) StatsRequirements(regionID int32) []message.StatsType {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.stats[regionID]
}

// SetContourParameters replaces the file's contour subscription.
func (f *File) SetContourParameters(params message.SetContourParameters) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	had := f.contours != nil
	if len(params.Levels) == 0 {
		f.contours = nil
		return had
	}
	f.contours = &params
	return had
}

// ContourParameters returns the file's contour subscription, if any.
func (f *File) ContourParameters() (message.SetContourParameters, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.contours == nil {
		return message.SetContourParameters{}, false
	}
	return *f.contours, true
}

// SetVectorOverlayParameters replaces the file's vector overlay
// subscription.
func (f *File) SetVectorOverlayParameters(params message.SetVectorOverlayParameters) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	had := f.vectors != nil
	f.vectors = &params
	return had
}

// VectorOverlayParameters returns the file's vector overlay subscription,
// if any.
func (f *File) VectorOverlayParameters() (message.SetVectorOverlayParameters, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.vectors == nil {
		return message.SetVectorOverlayParameters{}, false
	}
	return *f.vectors, true
}

// RegionMask rasterizes a region id against this file's spatial plane.
// The image and cube pseudo-regions cover every pixel.
func (f *File) RegionMask(regionID int32) (*cube.Mask, error) {
	if regionID == message.RegionIDImage || regionID == message.RegionIDCube {
		return cube.FullImageMask(f.Shape()), nil
	}
	info, ok := f.Region(regionID)
	if !ok {
		return nil, rejectf(errors.ErrRegionNotFound, "Region id %d not found", regionID)
	}
	return cube.RasterizeRegion(info, f.Shape())
}

func (f *File) close() error {
	if closer, ok := f.source.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// validateRegionInfo checks a region's control point count against its
// geometry before it enters the region table.
func validateRegionInfo(info message.RegionInfo) error {
	var min int
	switch info.RegionType {
	case message.RegionPoint:
		min = 1
	case message.RegionRectangle, message.RegionEllipse, message.RegionAnnulus,
		message.RegionLine:
		min = 2
	case message.RegionPolygon:
		min = 3
	case message.RegionPolyline:
		min = 2
	default:
		return rejectf(errors.ErrInvalidGeometry,
			"Unknown region type %d", int32(info.RegionType))
	}
	if len(info.ControlPoints) < min {
		return rejectf(errors.ErrInvalidGeometry,
			"Region type %s needs at least %d control points, got %d",
			info.RegionType, min, len(info.ControlPoints))
	}
	return nil
}
