package dispatch

import (
	"context"
	stderrors "errors"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
)

func (d *Dispatcher) handleStartAnimation(_ context.Context, frame message.Frame) error {
	var req message.StartAnimation
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventStartAnimationAck, frame.RequestID,
			message.StartAnimationAck{Ack: failAck(err)})
		return err
	}
	f, err := d.session().File(req.FileID)
	if err != nil {
		d.sendControl(message.EventStartAnimationAck, frame.RequestID,
			message.StartAnimationAck{Ack: failAck(err)})
		return err
	}

	tiles := req.RequiredTiles
	sender := func(ctx context.Context, animationID int32, af message.AnimationFrame) error {
		if err := f.SetView(af.Channel, af.Stokes); err != nil {
			return err
		}
		var tileIDs []int32
		if tiles != nil {
			tileIDs = tiles.Tiles
		} else if stored, ok := f.RequiredTiles(); ok {
			tileIDs = stored.Tiles
		}
		if err := d.sendTileBatch(ctx, f, tileIDs, animationID); err != nil {
			return err
		}
		if hasCurrentChannelConfig(f.HistogramRequirements(message.RegionIDImage)) {
			d.sendChannelHistogram(ctx, f, message.RegionIDImage)
		}
		return nil
	}

	// Playback outlives the request; it stops through StopAnimation,
	// close-file, or session teardown.
	id, err := d.anims.Start(context.Background(), req, sender)
	if err != nil {
		d.sendControl(message.EventStartAnimationAck, frame.RequestID,
			message.StartAnimationAck{Ack: failAck(err)})
		return err
	}
	d.sendControl(message.EventStartAnimationAck, frame.RequestID,
		message.StartAnimationAck{Ack: message.Ack{Success: true}, AnimationID: id})
	return nil
}

// handleStopAnimation has no ack. The view lands on the client's end
// frame so later tile requests render the frame the user actually sees.
func (d *Dispatcher) handleStopAnimation(_ context.Context, frame message.Frame) error {
	var req message.StopAnimation
	if err := decode(frame, &req); err != nil {
		return err
	}

	if err := d.anims.Stop(req.FileID, req.EndFrame); err != nil {
		if stderrors.Is(err, errors.ErrAnimationNotFound) {
			return nil
		}
		return err
	}

	f, err := d.session().File(req.FileID)
	if err != nil {
		return nil
	}
	if err := f.SetView(req.EndFrame.Channel, req.EndFrame.Stokes); err != nil {
		d.pushError("warning", err.Error(), req.FileID, 0)
	}
	return nil
}

func (d *Dispatcher) handleAnimationFlowControl(_ context.Context, frame message.Frame) error {
	var req message.AnimationFlowControl
	if err := decode(frame, &req); err != nil {
		return err
	}
	// Acks for an animation that already ended are stale, not errors.
	_ = d.anims.Ack(req)
	return nil
}
