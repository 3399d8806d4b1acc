package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/c360/cubestream/cube"
	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/jobs"
	"github.com/c360/cubestream/message"
	"github.com/c360/cubestream/session"
)

func (d *Dispatcher) handleMomentRequest(_ context.Context, frame message.Frame) error {
	var req message.MomentRequest
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventMomentResponse, frame.RequestID,
			message.MomentResponse{Ack: failAck(err)})
		return err
	}
	sess := d.session()
	f, err := sess.File(req.FileID)
	if err != nil {
		d.sendControl(message.EventMomentResponse, frame.RequestID,
			message.MomentResponse{Ack: failAck(err)})
		return err
	}
	mask, err := f.RegionMask(req.RegionID)
	if err != nil {
		d.sendControl(message.EventMomentResponse, frame.RequestID,
			message.MomentResponse{Ack: failAck(err)})
		return err
	}
	lo, hi, err := cube.ClampChannelRange(req.SpectralRange, f.Shape())
	if err != nil {
		d.sendControl(message.EventMomentResponse, frame.RequestID,
			message.MomentResponse{Ack: failAck(err)})
		return err
	}

	_, stokes := f.View()
	spec := cube.MomentRequestSpec{
		Stokes:     stokes,
		Moments:    req.Moments,
		ChannelMin: lo,
		ChannelMax: hi,
		Mask:       mask,
		PixelRange: req.PixelRange,
	}
	requestID := frame.RequestID

	var maps []cube.MomentMap
	_, err = d.jobs.Submit(jobs.Key{ID: req.FileID, Kind: jobs.KindMoment},
		func(ctx context.Context) error {
			var runErr error
			maps, runErr = cube.ComputeMoments(ctx, f.Source(), spec, func(p float64) {
				if ctx.Err() != nil {
					return
				}
				d.sendProgress(message.EventMomentProgress, message.MomentProgress{
					FileID:   req.FileID,
					Progress: p,
				})
			})
			return runErr
		},
		func(outcome jobs.Outcome, jobErr error) {
			switch outcome {
			case jobs.OutcomeCancelled:
				d.flushProgressFor(req.FileID)
				d.sendControl(message.EventMomentResponse, requestID,
					message.MomentResponse{Ack: message.Ack{Success: true, Cancel: true}})
			case jobs.OutcomeFailed:
				d.sendControl(message.EventMomentResponse, requestID,
					message.MomentResponse{Ack: failAck(jobErr)})
			default:
				acks := d.registerMomentMaps(sess, f, maps)
				d.sendControl(message.EventMomentResponse, requestID,
					message.MomentResponse{
						Ack:          message.Ack{Success: true},
						OpenFileAcks: acks,
					})
			}
		})
	if err != nil {
		d.sendControl(message.EventMomentResponse, frame.RequestID,
			message.MomentResponse{Ack: failAck(err)})
		return err
	}
	return nil
}

// registerMomentMaps opens each computed map as a derived file and emits
// its initial histogram. Failures skip the map and surface on the error
// stream; the remaining maps still open.
func (d *Dispatcher) registerMomentMaps(sess *session.Session, f *session.File, maps []cube.MomentMap) []message.OpenFileAck {
	acks := make([]message.OpenFileAck, 0, len(maps))
	for _, m := range maps {
		name := fmt.Sprintf("%s.moment.%d", f.Info().Name, int32(m.Moment))
		src, err := cube.NewMemoryImage(name, m.Width, m.Height, m.Data)
		if err != nil {
			d.pushError("error", err.Error(), f.ID(), 0)
			continue
		}
		derived, err := sess.OpenDerived(session.DerivedMoment, name, src)
		if err != nil {
			d.pushError("error", err.Error(), f.ID(), 0)
			continue
		}
		acks = append(acks, message.OpenFileAck{
			Ack:      message.Ack{Success: true},
			FileID:   derived.ID(),
			FileInfo: derived.Info(),
			Shape:    shapeSlice(derived.Shape()),
		})
		d.sendChannelHistogram(context.Background(), derived, message.RegionIDImage)
	}
	return acks
}

func (d *Dispatcher) handleStopMomentCalc(_ context.Context, frame message.Frame) error {
	var req message.StopMomentCalc
	if err := decode(frame, &req); err != nil {
		return err
	}
	err := d.jobs.Cancel(jobs.Key{ID: req.FileID, Kind: jobs.KindMoment})
	if stderrors.Is(err, errors.ErrJobNotFound) {
		// Already finished; the terminal response is on its way.
		return nil
	}
	return err
}

func (d *Dispatcher) handlePvRequest(ctx context.Context, frame message.Frame) error {
	var req message.PvRequest
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventPvResponse, frame.RequestID,
			message.PvResponse{Ack: failAck(err), PreviewID: req.PreviewID})
		return err
	}
	return d.startPvJob(ctx, frame.RequestID, req)
}

// startPvJob validates and launches one PV computation. It is shared by
// the request handler and the preview resubmission path, which re-runs a
// stored request with no originating request id.
func (d *Dispatcher) startPvJob(_ context.Context, requestID uint32, req message.PvRequest) error {
	fail := func(err error) error {
		d.sendControl(message.EventPvResponse, requestID,
			message.PvResponse{Ack: failAck(err), PreviewID: req.PreviewID})
		return err
	}

	sess := d.session()
	f, err := sess.File(req.FileID)
	if err != nil {
		return fail(err)
	}
	info, ok := f.Region(req.RegionID)
	if !ok {
		return fail(&errors.ClassifiedError{
			Class:   errors.ErrorInvalid,
			Err:     errors.ErrRegionNotFound,
			Message: fmt.Sprintf("Region id %d not found", req.RegionID),
		})
	}
	if info.RegionType != message.RegionLine && info.RegionType != message.RegionPolyline {
		return fail(&errors.ClassifiedError{
			Class:   errors.ErrorInvalid,
			Err:     errors.ErrInvalidGeometry,
			Message: fmt.Sprintf("PV generation needs a line region, got %s", info.RegionType),
		})
	}
	if req.Width < 1 {
		return fail(&errors.ClassifiedError{
			Class:   errors.ErrorInvalid,
			Err:     errors.ErrInvalidData,
			Message: fmt.Sprintf("Invalid averaging width %d", req.Width),
		})
	}
	lo, hi, err := cube.ClampChannelRange(req.SpectralRange, f.Shape())
	if err != nil {
		return fail(err)
	}

	_, stokes := f.View()
	spec := cube.PvRequestSpec{
		Stokes:     stokes,
		Line:       info,
		Width:      req.Width,
		ChannelMin: lo,
		ChannelMax: hi,
		Reverse:    req.Reverse,
	}
	key := jobs.Key{ID: req.FileID, Kind: jobs.KindPv}
	if req.Preview {
		spec.DownsampleFactor = 2
		key = jobs.Key{ID: req.PreviewID, Kind: jobs.KindPvPreview}
		d.mu.Lock()
		d.previews[req.PreviewID] = req
		d.mu.Unlock()
	}

	var img *cube.PvImage
	_, err = d.jobs.Submit(key,
		func(ctx context.Context) error {
			var runErr error
			img, runErr = cube.ComputePv(ctx, f.Source(), spec, func(p float64) {
				if ctx.Err() != nil {
					return
				}
				d.sendProgress(message.EventPvProgress, message.PvProgress{
					FileID:    req.FileID,
					PreviewID: req.PreviewID,
					Progress:  p,
				})
			})
			return runErr
		},
		func(outcome jobs.Outcome, jobErr error) {
			switch outcome {
			case jobs.OutcomeCancelled:
				d.flushProgressFor(req.FileID)
				d.sendControl(message.EventPvResponse, requestID,
					message.PvResponse{
						Ack:       message.Ack{Success: true, Cancel: true},
						PreviewID: req.PreviewID,
					})
			case jobs.OutcomeFailed:
				d.sendControl(message.EventPvResponse, requestID,
					message.PvResponse{Ack: failAck(jobErr), PreviewID: req.PreviewID})
			default:
				d.finishPv(requestID, req, sess, f, img)
			}
		})
	if err != nil {
		return fail(err)
	}
	return nil
}

// finishPv delivers a successful PV result. A full-resolution run opens
// the image as a derived file and emits its single histogram; a preview
// run only confirms completion.
func (d *Dispatcher) finishPv(requestID uint32, req message.PvRequest, sess *session.Session, f *session.File, img *cube.PvImage) {
	if req.Preview {
		d.sendControl(message.EventPvResponse, requestID,
			message.PvResponse{Ack: message.Ack{Success: true}, PreviewID: req.PreviewID})
		return
	}

	name := f.Info().Name + ".pv"
	src, err := cube.NewMemoryImage(name, img.Width, img.Height, img.Data)
	if err != nil {
		d.sendControl(message.EventPvResponse, requestID,
			message.PvResponse{Ack: failAck(err)})
		return
	}
	derived, err := sess.OpenDerived(session.DerivedPv, name, src)
	if err != nil {
		d.sendControl(message.EventPvResponse, requestID,
			message.PvResponse{Ack: failAck(err)})
		return
	}

	d.sendControl(message.EventPvResponse, requestID, message.PvResponse{
		Ack: message.Ack{Success: true},
		OpenFileAck: &message.OpenFileAck{
			Ack:      message.Ack{Success: true},
			FileID:   derived.ID(),
			FileInfo: derived.Info(),
			Shape:    shapeSlice(derived.Shape()),
		},
	})
	d.sendChannelHistogram(context.Background(), derived, message.RegionIDImage)
}

func (d *Dispatcher) handleStopPvCalc(_ context.Context, frame message.Frame) error {
	var req message.StopPvCalc
	if err := decode(frame, &req); err != nil {
		return err
	}
	err := d.jobs.Cancel(jobs.Key{ID: req.FileID, Kind: jobs.KindPv})
	if stderrors.Is(err, errors.ErrJobNotFound) {
		return nil
	}
	return err
}

func (d *Dispatcher) handleClosePvPreview(_ context.Context, frame message.Frame) error {
	var req message.ClosePvPreview
	if err := decode(frame, &req); err != nil {
		return err
	}
	d.mu.Lock()
	delete(d.previews, req.PreviewID)
	d.mu.Unlock()

	err := d.jobs.Cancel(jobs.Key{ID: req.PreviewID, Kind: jobs.KindPvPreview})
	if stderrors.Is(err, errors.ErrJobNotFound) {
		return nil
	}
	return err
}

func (d *Dispatcher) handleFittingRequest(_ context.Context, frame message.Frame) error {
	var req message.FittingRequest
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventFittingResponse, frame.RequestID,
			message.FittingResponse{Ack: failAck(err)})
		return err
	}
	f, err := d.session().File(req.FileID)
	if err != nil {
		d.sendControl(message.EventFittingResponse, frame.RequestID,
			message.FittingResponse{Ack: failAck(err)})
		return err
	}
	mask, err := f.RegionMask(req.RegionID)
	if err != nil {
		d.sendControl(message.EventFittingResponse, frame.RequestID,
			message.FittingResponse{Ack: failAck(err)})
		return err
	}

	channel, stokes := f.View()
	requestID := frame.RequestID

	var res cube.FitResult
	_, err = d.jobs.Submit(jobs.Key{ID: req.FileID, Kind: jobs.KindFitting},
		func(ctx context.Context) error {
			slice, err := f.Source().ChannelSlice(ctx, channel, stokes)
			if err != nil {
				return err
			}
			res = cube.FitGaussian(slice, f.Shape(), mask)
			return ctx.Err()
		},
		func(outcome jobs.Outcome, jobErr error) {
			switch outcome {
			case jobs.OutcomeCancelled:
				d.sendControl(message.EventFittingResponse, requestID,
					message.FittingResponse{Ack: message.Ack{Success: true, Cancel: true}})
			case jobs.OutcomeFailed:
				d.sendControl(message.EventFittingResponse, requestID,
					message.FittingResponse{Ack: failAck(jobErr)})
			default:
				// Non-convergence is a successful response carrying the
				// diagnostic log and no components.
				d.sendControl(message.EventFittingResponse, requestID,
					message.FittingResponse{
						Ack:        message.Ack{Success: true, Message: fitMessage(res)},
						Results:    res.Components,
						Log:        res.Log,
						Iterations: res.Iterations,
					})
			}
		})
	if err != nil {
		d.sendControl(message.EventFittingResponse, frame.RequestID,
			message.FittingResponse{Ack: failAck(err)})
		return err
	}
	return nil
}

func fitMessage(res cube.FitResult) string {
	if res.Converged {
		return ""
	}
	return res.Log
}
