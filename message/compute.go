package message

// MomentType enumerates the moment maps a MomentRequest can ask for.
// Values follow the conventional moment numbering (0 = integrated value,
// 1 = intensity-weighted coordinate, ...).
type MomentType int32

// Moment kinds.
const (
	MomentMean MomentType = iota
	MomentIntegrated
	MomentWeightedCoord
	MomentWeightedDispersion
	MomentMedian
	MomentMedianCoord
	MomentStdDev
	MomentRMS
	MomentAbsMeanDev
	MomentMax
	MomentMaxCoord
	MomentMin
	MomentMinCoord
)

// MomentRequest starts moment map generation over a region and channel
// range. The computation runs in the background and streams
// MomentProgress until a single terminal MomentResponse.
type MomentRequest struct {
	FileID       int32        `json:"file_id"`
	RegionID     int32        `json:"region_id"`
	Moments      []MomentType `json:"moments"`
	SpectralRange *ChannelRange `json:"spectral_range,omitempty"`
	Mask         string       `json:"mask,omitempty"`
	PixelRange   *HistBounds  `json:"pixel_range,omitempty"`
	Keep         bool         `json:"keep,omitempty"`
}

// ChannelRange bounds a computation along the spectral axis (inclusive).
type ChannelRange struct {
	Min int32 `json:"min"`
	Max int32 `json:"max"`
}

// MomentProgress reports fractional completion of a running moment job.
type MomentProgress struct {
	FileID   int32   `json:"file_id"`
	Progress float64 `json:"progress"`
}

// MomentResponse is the single terminal outcome of a moment job. On
// success it lists the synthesized output files; on cancellation
// Cancel=true and OpenFileAcks is empty.
type MomentResponse struct {
	Ack
	OpenFileAcks []OpenFileAck `json:"open_file_acks,omitempty"`
}

// StopMomentCalc cancels a running moment job. Cancelling a job that
// already finished is a no-op.
type StopMomentCalc struct {
	FileID int32 `json:"file_id"`
}

// PvRequest starts position-velocity image generation along a line
// region. With Preview=true the job renders a downsampled preview that is
// kept live and regenerated as the region moves, identified by PreviewID.
type PvRequest struct {
	FileID        int32         `json:"file_id"`
	RegionID      int32         `json:"region_id"`
	Width         int32         `json:"width"`
	SpectralRange *ChannelRange `json:"spectral_range,omitempty"`
	Reverse       bool          `json:"reverse,omitempty"`
	Keep          bool          `json:"keep,omitempty"`
	Preview       bool          `json:"preview,omitempty"`
	PreviewID     int32         `json:"preview_id,omitempty"`
}

// PvProgress reports fractional completion of a running PV job.
type PvProgress struct {
	FileID    int32   `json:"file_id"`
	PreviewID int32   `json:"preview_id,omitempty"`
	Progress  float64 `json:"progress"`
}

// PvResponse is the single terminal outcome of a PV job.
type PvResponse struct {
	Ack
	OpenFileAck *OpenFileAck `json:"open_file_ack,omitempty"`
	PreviewID   int32        `json:"preview_id,omitempty"`
}

// StopPvCalc cancels a running PV job.
type StopPvCalc struct {
	FileID int32 `json:"file_id"`
}

// ClosePvPreview tears down a live PV preview.
type ClosePvPreview struct {
	PreviewID int32 `json:"preview_id"`
}

// FittingRequest fits a model to an image region. Non-convergence is a
// normal terminal outcome reported in the response message, not an error.
type FittingRequest struct {
	FileID        int32        `json:"file_id"`
	RegionID      int32        `json:"region_id"`
	InitialValues []GaussianComponent `json:"initial_values"`
	FixedParams   []bool       `json:"fixed_params,omitempty"`
	MaxIterations int32        `json:"max_iterations,omitempty"`
	Solver        string       `json:"solver,omitempty"`
}

// GaussianComponent is one 2-D gaussian in a fitting request or result.
type GaussianComponent struct {
	Center    Point   `json:"center"`
	Amplitude float64 `json:"amp"`
	FwhmX     float64 `json:"fwhm_x"`
	FwhmY     float64 `json:"fwhm_y"`
	PA        float64 `json:"pa"`
}

// FittingResponse carries fit results. Success=true with a diagnostic
// Message and empty Results means the fit did not converge.
type FittingResponse struct {
	Ack
	Results    []GaussianComponent `json:"result_values,omitempty"`
	Errors     []GaussianComponent `json:"result_errors,omitempty"`
	Log        string              `json:"log,omitempty"`
	Iterations int32               `json:"num_iter,omitempty"`
}
