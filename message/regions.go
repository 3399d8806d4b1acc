package message

// RegionType enumerates the supported region geometries.
type RegionType int32

// Region geometries.
const (
	RegionPoint RegionType = iota
	RegionRectangle
	RegionEllipse
	RegionPolygon
	RegionLine
	RegionPolyline
	RegionAnnulus
)

// String returns the region type name.
func (rt RegionType) String() string {
	switch rt {
	case RegionPoint:
		return "point"
	case RegionRectangle:
		return "rectangle"
	case RegionEllipse:
		return "ellipse"
	case RegionPolygon:
		return "polygon"
	case RegionLine:
		return "line"
	case RegionPolyline:
		return "polyline"
	case RegionAnnulus:
		return "annulus"
	default:
		return "unknown"
	}
}

// Point is an image-pixel coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RegionInfo is the geometry of a region.
type RegionInfo struct {
	RegionType    RegionType `json:"region_type"`
	ControlPoints []Point    `json:"control_points"`
	Rotation      float64    `json:"rotation,omitempty"`
}

// SetRegion creates a region (RegionID == RegionIDNew) or mutates an
// existing one in place.
type SetRegion struct {
	FileID     int32      `json:"file_id"`
	RegionID   int32      `json:"region_id"`
	RegionInfo RegionInfo `json:"region_info"`
}

// SetRegionAck returns the allocated (or confirmed) region id.
type SetRegionAck struct {
	Ack
	RegionID int32 `json:"region_id"`
}

// RemoveRegion deletes a client-created region.
type RemoveRegion struct {
	RegionID int32 `json:"region_id"`
}

// RegionListRequest lists region files in a directory.
type RegionListRequest struct {
	Directory string `json:"directory"`
}

// RegionListResponse lists region files and subdirectories.
type RegionListResponse struct {
	Ack
	Directory      string     `json:"directory"`
	Files          []FileInfo `json:"files"`
	Subdirectories []string   `json:"subdirectories,omitempty"`
}

// RegionFileInfoRequest asks for the contents summary of a region file.
type RegionFileInfoRequest struct {
	Directory string `json:"directory"`
	File      string `json:"file"`
}

// RegionFileInfoResponse describes a region file.
type RegionFileInfoResponse struct {
	Ack
	FileInfo FileInfo `json:"file_info"`
	Contents []string `json:"contents,omitempty"`
}

// ImportRegion loads regions from a file (or inline contents) into an
// open image. Mixed coordinate systems are rejected.
type ImportRegion struct {
	GroupID   int32    `json:"group_id"` // file id the regions attach to
	Type      string   `json:"type"`     // "crtf" or "ds9"
	Directory string   `json:"directory,omitempty"`
	File      string   `json:"file,omitempty"`
	Contents  []string `json:"contents,omitempty"`
}

// ImportRegionAck returns the imported regions keyed by assigned id.
type ImportRegionAck struct {
	Ack
	Regions map[int32]RegionInfo `json:"regions,omitempty"`
}

// ExportRegion writes regions to a file in the requested format and
// coordinate system.
type ExportRegion struct {
	FileID      int32            `json:"file_id"`
	Type        string           `json:"type"`       // "crtf" or "ds9"
	CoordType   string           `json:"coord_type"` // "pixel" or "world"
	Directory   string           `json:"directory"`
	File        string           `json:"file"`
	RegionIDs   []int32          `json:"region_id"`
	RegionStyles map[int32]string `json:"region_styles,omitempty"`
}

// ExportRegionAck confirms the export, or returns the serialized contents
// when no output file was named.
type ExportRegionAck struct {
	Ack
	Contents []string `json:"contents,omitempty"`
}
