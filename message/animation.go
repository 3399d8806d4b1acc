package message

// AnimationFrame is one playback position: a channel/stokes pair.
type AnimationFrame struct {
	Channel int32 `json:"channel"`
	Stokes  int32 `json:"stokes"`
}

// StartAnimation begins frame playback for a file. The server pushes
// frames up to the flow-control window without waiting and then advances
// one frame per AnimationFlowControl acknowledgment.
type StartAnimation struct {
	FileID        int32          `json:"file_id"`
	FirstFrame    AnimationFrame `json:"first_frame"`
	StartFrame    AnimationFrame `json:"start_frame"`
	LastFrame     AnimationFrame `json:"last_frame"`
	DeltaFrame    AnimationFrame `json:"delta_frame"`
	FrameRate     float64        `json:"frame_rate,omitempty"`
	Looping       bool           `json:"looping,omitempty"`
	Reverse       bool           `json:"reverse,omitempty"`
	RequiredTiles *TileSet       `json:"required_tiles,omitempty"`
}

// StartAnimationAck returns the assigned animation id.
type StartAnimationAck struct {
	Ack
	AnimationID int32 `json:"animation_id"`
}

// StopAnimation halts playback at a terminal end frame. Frames already in
// flight when the stop was issued may still arrive; no frame-advance
// output follows them.
type StopAnimation struct {
	FileID   int32          `json:"file_id"`
	EndFrame AnimationFrame `json:"end_frame"`
}

// AnimationFlowControl acknowledges receipt of one frame, returning a
// flow-control credit to the server.
type AnimationFlowControl struct {
	FileID        int32          `json:"file_id"`
	AnimationID   int32          `json:"animation_id"`
	ReceivedFrame AnimationFrame `json:"received_frame"`
	Timestamp     int64          `json:"timestamp"`
}
