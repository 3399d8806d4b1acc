package message

// EventType identifies the kind of message carried by a frame.
type EventType uint16

// Request, ack and stream event types. Values are part of the wire
// protocol and must not be renumbered.
const (
	EventUnknown EventType = 0

	// Session lifecycle
	EventRegisterViewer    EventType = 1
	EventRegisterViewerAck EventType = 2
	EventResumeSession     EventType = 3
	EventResumeSessionAck  EventType = 4

	// File browsing and lifecycle
	EventFileListRequest  EventType = 10
	EventFileListResponse EventType = 11
	EventFileInfoRequest  EventType = 12
	EventFileInfoResponse EventType = 13
	EventOpenFile         EventType = 14
	EventOpenFileAck      EventType = 15
	EventCloseFile        EventType = 16
	EventSaveFile         EventType = 17
	EventSaveFileAck      EventType = 18
	EventConcatStokesFiles    EventType = 19
	EventConcatStokesFilesAck EventType = 20

	// Image view state
	EventSetImageChannels EventType = 30
	EventSetCursor        EventType = 31
	EventAddRequiredTiles EventType = 32
	EventRasterTileData   EventType = 33
	EventRasterTileSync   EventType = 34

	// Regions
	EventSetRegion             EventType = 40
	EventSetRegionAck          EventType = 41
	EventRemoveRegion          EventType = 42
	EventRegionListRequest     EventType = 43
	EventRegionListResponse    EventType = 44
	EventRegionFileInfoRequest EventType = 45
	EventRegionFileInfoResponse EventType = 46
	EventImportRegion          EventType = 47
	EventImportRegionAck       EventType = 48
	EventExportRegion          EventType = 49
	EventExportRegionAck       EventType = 50

	// Requirement subscriptions and their streams
	EventSetSpatialRequirements    EventType = 60
	EventSpatialProfileData        EventType = 61
	EventSetSpectralRequirements   EventType = 62
	EventSpectralProfileData       EventType = 63
	EventSetStatsRequirements      EventType = 64
	EventRegionStatsData           EventType = 65
	EventSetHistogramRequirements  EventType = 66
	EventRegionHistogramData       EventType = 67
	EventSetContourParameters      EventType = 68
	EventContourImageData          EventType = 69
	EventSetVectorOverlayParameters EventType = 70
	EventVectorOverlayTileData     EventType = 71

	// Animation
	EventStartAnimation       EventType = 80
	EventStartAnimationAck    EventType = 81
	EventStopAnimation        EventType = 82
	EventAnimationFlowControl EventType = 83

	// Long-running computations
	EventMomentRequest  EventType = 90
	EventMomentResponse EventType = 91
	EventMomentProgress EventType = 92
	EventStopMomentCalc EventType = 93
	EventPvRequest      EventType = 94
	EventPvResponse     EventType = 95
	EventPvProgress     EventType = 96
	EventStopPvCalc     EventType = 97
	EventClosePvPreview EventType = 98
	EventFittingRequest  EventType = 99
	EventFittingResponse EventType = 100

	// Catalogs
	EventCatalogListRequest      EventType = 110
	EventCatalogListResponse     EventType = 111
	EventCatalogFileInfoRequest  EventType = 112
	EventCatalogFileInfoResponse EventType = 113
	EventOpenCatalogFile         EventType = 114
	EventOpenCatalogFileAck      EventType = 115
	EventCloseCatalogFile        EventType = 116
	EventSetCatalogFilterRequest EventType = 117
	EventCatalogFilterResponse   EventType = 118

	// Out-of-band errors
	EventErrorData EventType = 120
)

// String returns the wire name of the event type.
func (e EventType) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return "UNKNOWN"
}

var eventNames = map[EventType]string{
	EventRegisterViewer:             "REGISTER_VIEWER",
	EventRegisterViewerAck:          "REGISTER_VIEWER_ACK",
	EventResumeSession:              "RESUME_SESSION",
	EventResumeSessionAck:           "RESUME_SESSION_ACK",
	EventFileListRequest:            "FILE_LIST_REQUEST",
	EventFileListResponse:           "FILE_LIST_RESPONSE",
	EventFileInfoRequest:            "FILE_INFO_REQUEST",
	EventFileInfoResponse:           "FILE_INFO_RESPONSE",
	EventOpenFile:                   "OPEN_FILE",
	EventOpenFileAck:                "OPEN_FILE_ACK",
	EventCloseFile:                  "CLOSE_FILE",
	EventSaveFile:                   "SAVE_FILE",
	EventSaveFileAck:                "SAVE_FILE_ACK",
	EventConcatStokesFiles:          "CONCAT_STOKES_FILES",
	EventConcatStokesFilesAck:       "CONCAT_STOKES_FILES_ACK",
	EventSetImageChannels:           "SET_IMAGE_CHANNELS",
	EventSetCursor:                  "SET_CURSOR",
	EventAddRequiredTiles:           "ADD_REQUIRED_TILES",
	EventRasterTileData:             "RASTER_TILE_DATA",
	EventRasterTileSync:             "RASTER_TILE_SYNC",
	EventSetRegion:                  "SET_REGION",
	EventSetRegionAck:               "SET_REGION_ACK",
	EventRemoveRegion:               "REMOVE_REGION",
	EventRegionListRequest:          "REGION_LIST_REQUEST",
	EventRegionListResponse:         "REGION_LIST_RESPONSE",
	EventRegionFileInfoRequest:      "REGION_FILE_INFO_REQUEST",
	EventRegionFileInfoResponse:     "REGION_FILE_INFO_RESPONSE",
	EventImportRegion:               "IMPORT_REGION",
	EventImportRegionAck:            "IMPORT_REGION_ACK",
	EventExportRegion:               "EXPORT_REGION",
	EventExportRegionAck:            "EXPORT_REGION_ACK",
	EventSetSpatialRequirements:     "SET_SPATIAL_REQUIREMENTS",
	EventSpatialProfileData:         "SPATIAL_PROFILE_DATA",
	EventSetSpectralRequirements:    "SET_SPECTRAL_REQUIREMENTS",
	EventSpectralProfileData:        "SPECTRAL_PROFILE_DATA",
	EventSetStatsRequirements:       "SET_STATS_REQUIREMENTS",
	EventRegionStatsData:            "REGION_STATS_DATA",
	EventSetHistogramRequirements:   "SET_HISTOGRAM_REQUIREMENTS",
	EventRegionHistogramData:        "REGION_HISTOGRAM_DATA",
	EventSetContourParameters:       "SET_CONTOUR_PARAMETERS",
	EventContourImageData:           "CONTOUR_IMAGE_DATA",
	EventSetVectorOverlayParameters: "SET_VECTOR_OVERLAY_PARAMETERS",
	EventVectorOverlayTileData:      "VECTOR_OVERLAY_TILE_DATA",
	EventStartAnimation:             "START_ANIMATION",
	EventStartAnimationAck:          "START_ANIMATION_ACK",
	EventStopAnimation:              "STOP_ANIMATION",
	EventAnimationFlowControl:       "ANIMATION_FLOW_CONTROL",
	EventMomentRequest:              "MOMENT_REQUEST",
	EventMomentResponse:             "MOMENT_RESPONSE",
	EventMomentProgress:             "MOMENT_PROGRESS",
	EventStopMomentCalc:             "STOP_MOMENT_CALC",
	EventPvRequest:                  "PV_REQUEST",
	EventPvResponse:                 "PV_RESPONSE",
	EventPvProgress:                 "PV_PROGRESS",
	EventStopPvCalc:                 "STOP_PV_CALC",
	EventClosePvPreview:             "CLOSE_PV_PREVIEW",
	EventFittingRequest:             "FITTING_REQUEST",
	EventFittingResponse:            "FITTING_RESPONSE",
	EventCatalogListRequest:         "CATALOG_LIST_REQUEST",
	EventCatalogListResponse:        "CATALOG_LIST_RESPONSE",
	EventCatalogFileInfoRequest:     "CATALOG_FILE_INFO_REQUEST",
	EventCatalogFileInfoResponse:    "CATALOG_FILE_INFO_RESPONSE",
	EventOpenCatalogFile:            "OPEN_CATALOG_FILE",
	EventOpenCatalogFileAck:         "OPEN_CATALOG_FILE_ACK",
	EventCloseCatalogFile:           "CLOSE_CATALOG_FILE",
	EventSetCatalogFilterRequest:    "SET_CATALOG_FILTER_REQUEST",
	EventCatalogFilterResponse:      "CATALOG_FILTER_RESPONSE",
	EventErrorData:                  "ERROR_DATA",
}
