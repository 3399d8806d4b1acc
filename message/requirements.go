package message

// StatsType enumerates the statistics a stats or spectral requirement can
// ask for.
type StatsType int32

// Statistics kinds.
const (
	StatsNumPixels StatsType = iota
	StatsSum
	StatsMean
	StatsRMS
	StatsSigma
	StatsSumSq
	StatsMin
	StatsMax
	StatsExtrema
)

// SetHistogramRequirements replaces the histogram subscription for
// (file, region). Replacing a subscription supersedes the previous one:
// any in-flight computation for the old configuration is cancelled before
// data for the new configuration is emitted.
type SetHistogramRequirements struct {
	FileID     int32             `json:"file_id"`
	RegionID   int32             `json:"region_id"`
	Histograms []HistogramConfig `json:"histograms"`
}

// HistogramConfig is one requested histogram.
type HistogramConfig struct {
	Channel   int32       `json:"channel"` // -1 means current, -2 means whole cube
	NumBins   int32       `json:"num_bins"` // -1 means automatic binning
	Bounds    *HistBounds `json:"bounds,omitempty"`
	Coordinate string     `json:"coordinate,omitempty"`
}

// HistBounds fixes the histogram range; when absent the data range is used.
type HistBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// RegionHistogramData streams a computed histogram, tagged with the
// configuration that produced it.
type RegionHistogramData struct {
	FileID    int32     `json:"file_id"`
	RegionID  int32     `json:"region_id"`
	Channel   int32     `json:"channel"`
	Stokes    int32     `json:"stokes"`
	NumBins   int32     `json:"num_bins"`
	BinWidth  float64   `json:"bin_width"`
	FirstBinCenter float64 `json:"first_bin_center"`
	Bins      []int32   `json:"bins"`
	Mean      float64   `json:"mean,omitempty"`
	StdDev    float64   `json:"std_dev,omitempty"`
	Progress  float64   `json:"progress"` // 1.0 for single-channel histograms
}

// SetSpatialRequirements replaces the spatial profile subscription for
// (file, region).
type SetSpatialRequirements struct {
	FileID   int32                `json:"file_id"`
	RegionID int32                `json:"region_id"`
	Profiles []SpatialProfileSpec `json:"spatial_profiles"`
}

// SpatialProfileSpec names one axis cut: coordinate "x" or "y", with
// optional start/end bounds and decimation mip level.
type SpatialProfileSpec struct {
	Coordinate string `json:"coordinate"`
	Start      int32  `json:"start,omitempty"`
	End        int32  `json:"end,omitempty"`
	Mip        int32  `json:"mip,omitempty"`
}

// SpatialProfileData streams profile values at the current cursor.
type SpatialProfileData struct {
	FileID   int32            `json:"file_id"`
	RegionID int32            `json:"region_id"`
	X        float64          `json:"x"`
	Y        float64          `json:"y"`
	Channel  int32            `json:"channel"`
	Stokes   int32            `json:"stokes"`
	Value    float64          `json:"value"`
	Profiles []SpatialProfile `json:"profiles"`
}

// SpatialProfile is one axis cut's values.
type SpatialProfile struct {
	Coordinate string    `json:"coordinate"`
	Start      int32     `json:"start"`
	End        int32     `json:"end"`
	Values     []float64 `json:"values"`
}

// SetSpectralRequirements replaces the spectral profile subscription for
// (file, region).
type SetSpectralRequirements struct {
	FileID   int32                 `json:"file_id"`
	RegionID int32                 `json:"region_id"`
	Profiles []SpectralProfileSpec `json:"spectral_profiles"`
}

// SpectralProfileSpec asks for one statistic along the spectral axis.
type SpectralProfileSpec struct {
	Coordinate string      `json:"coordinate"`
	StatsTypes []StatsType `json:"stats_types"`
}

// SpectralProfileData streams a statistic per channel for a region.
type SpectralProfileData struct {
	FileID   int32             `json:"file_id"`
	RegionID int32             `json:"region_id"`
	Stokes   int32             `json:"stokes"`
	Progress float64           `json:"progress"`
	Profiles []SpectralProfile `json:"profiles"`
}

// SpectralProfile carries one statistic's values across channels.
type SpectralProfile struct {
	Coordinate string    `json:"coordinate"`
	StatsType  StatsType `json:"stats_type"`
	Values     []float64 `json:"values"`
}

// SetStatsRequirements replaces the statistics subscription for
// (file, region).
type SetStatsRequirements struct {
	FileID     int32       `json:"file_id"`
	RegionID   int32       `json:"region_id"`
	StatsTypes []StatsType `json:"stats_types"`
}

// RegionStatsData streams region statistics for the current channel.
type RegionStatsData struct {
	FileID     int32              `json:"file_id"`
	RegionID   int32              `json:"region_id"`
	Channel    int32              `json:"channel"`
	Stokes     int32              `json:"stokes"`
	Statistics map[string]float64 `json:"statistics"`
}

// SetContourParameters replaces the contour subscription for a file.
type SetContourParameters struct {
	FileID           int32     `json:"file_id"`
	Levels           []float64 `json:"levels"`
	SmoothingMode    int32     `json:"smoothing_mode,omitempty"`
	SmoothingFactor  int32     `json:"smoothing_factor,omitempty"`
	DecimationFactor int32     `json:"decimation_factor,omitempty"`
	CompressionLevel int32     `json:"compression_level,omitempty"`
	ChunkSize        int32     `json:"contour_chunk_size,omitempty"`
}

// ContourImageData streams contour vertices for one level.
type ContourImageData struct {
	FileID   int32     `json:"file_id"`
	Channel  int32     `json:"channel"`
	Stokes   int32     `json:"stokes"`
	Level    float64   `json:"level"`
	Progress float64   `json:"progress"`
	Vertices []float64 `json:"vertices,omitempty"` // x,y interleaved
}

// SetVectorOverlayParameters replaces the vector overlay subscription for
// a file.
type SetVectorOverlayParameters struct {
	FileID             int32   `json:"file_id"`
	SmoothingFactor    int32   `json:"smoothing_factor,omitempty"`
	Fractional         bool    `json:"fractional,omitempty"`
	Threshold          float64 `json:"threshold,omitempty"`
	Debiasing          bool    `json:"debiasing,omitempty"`
	QError             float64 `json:"q_error,omitempty"`
	UError             float64 `json:"u_error,omitempty"`
	StokesIntensity    int32   `json:"stokes_intensity,omitempty"`
	StokesAngle        int32   `json:"stokes_angle,omitempty"`
	CompressionQuality int32   `json:"compression_quality,omitempty"`
}

// VectorOverlayTileData streams polarization vector tiles.
type VectorOverlayTileData struct {
	FileID    int32     `json:"file_id"`
	Channel   int32     `json:"channel"`
	Stokes    int32     `json:"stokes"`
	Tile      int32     `json:"tile"`
	Progress  float64   `json:"progress"`
	Intensity []float64 `json:"intensity_data,omitempty"`
	Angle     []float64 `json:"angle_data,omitempty"`
}
