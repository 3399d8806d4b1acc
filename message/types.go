package message

// Ack carries the common result fields every direct response includes.
// Validation failures are surfaced here with Success=false; cancellation
// of a long computation is a successful outcome with Cancel=true.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Cancel  bool   `json:"cancel,omitempty"`
}

// RegisterViewer opens a logical session on a fresh connection. A
// non-empty SessionID asks to re-attach to a known session identity.
type RegisterViewer struct {
	SessionID    string `json:"session_id,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
	ClientFeature uint32 `json:"client_feature_flags,omitempty"`
}

// RegisterViewerAck confirms session establishment.
type RegisterViewerAck struct {
	Ack
	SessionID   string `json:"session_id"`
	SessionType string `json:"session_type"` // "new" or "resumed"
}

// ResumeSession replays a prior session's open files and regions against
// a new connection. An empty Files list asks the server to restore the
// last persisted snapshot for the session id.
type ResumeSession struct {
	SessionID string          `json:"session_id"`
	Files     []ResumeFile    `json:"files,omitempty"`
	Catalogs  []ResumeCatalog `json:"catalog_files,omitempty"`
}

// ResumeFile describes one file to reopen during session resume.
type ResumeFile struct {
	FileID    int32               `json:"file_id"`
	Directory string              `json:"directory"`
	File      string              `json:"file"`
	HDU       string              `json:"hdu,omitempty"`
	Channel   int32               `json:"channel"`
	Stokes    int32               `json:"stokes"`
	Regions   map[int32]RegionInfo `json:"regions,omitempty"`
}

// ResumeCatalog describes one catalog file to reopen during resume.
type ResumeCatalog struct {
	FileID    int32  `json:"file_id"`
	Directory string `json:"directory"`
	Name      string `json:"name"`
}

// ResumeSessionAck reports resume success.
type ResumeSessionAck struct {
	Ack
}

// FileListRequest asks for the files in a directory. It is also the
// liveness probe: the server answers it at all times, including right
// after aborted operations.
type FileListRequest struct {
	Directory string `json:"directory"`
}

// FileListResponse lists files and subdirectories.
type FileListResponse struct {
	Ack
	Directory      string     `json:"directory"`
	Files          []FileInfo `json:"files"`
	Subdirectories []string   `json:"subdirectories,omitempty"`
}

// FileInfo summarizes one image file.
type FileInfo struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
	HDUs []string `json:"hdu_list,omitempty"`
}

// FileInfoRequest asks for extended header information on one file.
type FileInfoRequest struct {
	Directory string `json:"directory"`
	File      string `json:"file"`
	HDU       string `json:"hdu,omitempty"`
}

// FileInfoResponse carries extended header information.
type FileInfoResponse struct {
	Ack
	FileInfo FileInfo          `json:"file_info"`
	Headers  map[string]string `json:"headers,omitempty"`
	Shape    []int32           `json:"shape,omitempty"`
}

// OpenFile opens an image file under a client-chosen id.
type OpenFile struct {
	Directory string `json:"directory"`
	File      string `json:"file"`
	HDU       string `json:"hdu,omitempty"`
	FileID    int32  `json:"file_id"`
}

// OpenFileAck confirms the open and describes the image.
type OpenFileAck struct {
	Ack
	FileID   int32   `json:"file_id"`
	FileInfo FileInfo `json:"file_info"`
	Shape    []int32 `json:"shape,omitempty"` // [width, height, channels, stokes]
}

// CloseFile closes one file, or every file when FileID is FileIDAll.
// It has no ack; all jobs and animations owned by the closed file(s) are
// cancelled first.
type CloseFile struct {
	FileID int32 `json:"file_id"`
}

// SaveFile writes an open file (or a sub-cube of it) back to disk.
type SaveFile struct {
	FileID     int32  `json:"file_id"`
	OutputName string `json:"output_file_name"`
	Directory  string `json:"output_file_directory"`
	Channels   []int32 `json:"channels,omitempty"`
	Stokes     []int32 `json:"stokes,omitempty"`
}

// SaveFileAck confirms the save.
type SaveFileAck struct {
	Ack
	FileID int32 `json:"file_id"`
}

// ConcatStokesFiles combines per-polarization files into one cube opened
// under FileID. All inputs must share the same image shape, and no
// polarization type may repeat.
type ConcatStokesFiles struct {
	FileID int32              `json:"file_id"`
	Files  []StokesFileSource `json:"stokes_files"`
}

// StokesFileSource names one polarization component of a concat request.
type StokesFileSource struct {
	Directory  string `json:"directory"`
	File       string `json:"file"`
	HDU        string `json:"hdu,omitempty"`
	StokesType string `json:"polarization_type"` // "I", "Q", "U", "V"
}

// ConcatStokesFilesAck confirms the concatenation.
type ConcatStokesFilesAck struct {
	Ack
	FileID   int32    `json:"file_id"`
	FileInfo FileInfo `json:"file_info"`
	Shape    []int32  `json:"shape,omitempty"`
}

// SetImageChannels changes the current channel/stokes of a file and names
// the tiles required for the new view.
type SetImageChannels struct {
	FileID        int32    `json:"file_id"`
	Channel       int32    `json:"channel"`
	Stokes        int32    `json:"stokes"`
	RequiredTiles *TileSet `json:"required_tiles,omitempty"`
}

// SetCursor moves the image cursor; spatial profiles follow it.
type SetCursor struct {
	FileID int32   `json:"file_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// AddRequiredTiles declares the tiles the client needs for the current
// view, with the compression to apply.
type AddRequiredTiles struct {
	FileID             int32   `json:"file_id"`
	Tiles              []int32 `json:"tiles"`
	CompressionType    string  `json:"compression_type,omitempty"`
	CompressionQuality int32   `json:"compression_quality,omitempty"`
}

// TileSet is the tile requirement embedded in channel changes and
// animation frames.
type TileSet struct {
	FileID             int32   `json:"file_id"`
	Tiles              []int32 `json:"tiles"`
	CompressionType    string  `json:"compression_type,omitempty"`
	CompressionQuality int32   `json:"compression_quality,omitempty"`
}

// RasterTileData is one tile of raster data pushed to the client.
type RasterTileData struct {
	FileID      int32     `json:"file_id"`
	Channel     int32     `json:"channel"`
	Stokes      int32     `json:"stokes"`
	Tile        int32     `json:"tile"` // packed (layer, x, y)
	Width       int32     `json:"width"`
	Height      int32     `json:"height"`
	CompressionType string `json:"compression_type,omitempty"`
	ImageData   []float32 `json:"image_data,omitempty"`
	AnimationID int32     `json:"animation_id,omitempty"`
}

// RasterTileSync brackets a tile batch. A batch for N tiles is exactly:
// one sync with EndSync=false, N RasterTileData messages, one sync with
// EndSync=true and TileCount=N, all carrying the same channel/stokes.
type RasterTileSync struct {
	FileID      int32 `json:"file_id"`
	Channel     int32 `json:"channel"`
	Stokes      int32 `json:"stokes"`
	SyncID      int32 `json:"sync_id"`
	AnimationID int32 `json:"animation_id,omitempty"`
	TileCount   int32 `json:"tile_count,omitempty"`
	EndSync     bool  `json:"end_sync,omitempty"`
}

// ErrorData is the out-of-band error stream, used when a failure is
// discovered outside a request's direct handling path.
type ErrorData struct {
	Severity string   `json:"severity"` // "warning", "error"
	Tags     []string `json:"tags,omitempty"`
	Message  string   `json:"message"`
	FileID   int32    `json:"file_id,omitempty"`
	RegionID int32    `json:"region_id,omitempty"`
}
