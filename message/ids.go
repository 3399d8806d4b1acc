package message

// Sentinel file ids.
const (
	// FileIDAll in a CloseFile request closes every open file in the
	// session, cancelling all jobs and animations first.
	FileIDAll int32 = -1

	// FileIDPvBase is the first id in the allocation range for
	// server-synthesized PV images. Successive PV products count down
	// from here (-1000, -1001, ...).
	FileIDPvBase int32 = -1000

	// FileIDMomentBase is the first id in the allocation range for
	// server-synthesized moment maps (-2000, -2001, ...).
	FileIDMomentBase int32 = -2000
)

// Sentinel region ids.
const (
	// RegionIDNew in a SetRegion request asks the server to allocate a
	// fresh positive region id.
	RegionIDNew int32 = -1

	// RegionIDImage is the pseudo-region covering the entire current
	// channel image.
	RegionIDImage int32 = -1

	// RegionIDCube is the pseudo-region covering the entire cube across
	// all channels.
	RegionIDCube int32 = -2
)

// Sentinel channel selectors in histogram configurations.
const (
	// ChannelCurrent selects the file's current channel; the histogram
	// follows the view as it changes.
	ChannelCurrent int32 = -1

	// ChannelCube selects every channel, computed as a cancellable
	// background job with streamed progress.
	ChannelCube int32 = -2
)

// IsDerivedFileID reports whether id belongs to a server-synthesized
// product rather than a client-opened file.
func IsDerivedFileID(id int32) bool {
	return id <= FileIDPvBase
}
