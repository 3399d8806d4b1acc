package dispatch

import (
	"context"
	stderrors "errors"

	"github.com/c360/cubestream/cube"
	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/jobs"
	"github.com/c360/cubestream/message"
	"github.com/c360/cubestream/session"
)

func (d *Dispatcher) handleSetHistogramRequirements(ctx context.Context, frame message.Frame) error {
	var req message.SetHistogramRequirements
	if err := decode(frame, &req); err != nil {
		d.pushError("error", err.Error(), req.FileID, req.RegionID)
		return err
	}
	f, err := d.session().File(req.FileID)
	if err != nil {
		d.pushError("error", err.Error(), req.FileID, req.RegionID)
		return err
	}
	if !f.HasRegion(req.RegionID) {
		d.pushError("warning", "Region id "+itoa(req.RegionID)+" not found", req.FileID, req.RegionID)
		return errors.ErrRegionNotFound
	}

	// Replacing the subscription supersedes any in-flight cube histogram
	// for this region: its output never reaches the wire after this
	// point. Other regions' jobs keep running.
	if f.SetHistogramRequirements(req.RegionID, req.Histograms) {
		if err := d.jobs.Cancel(jobs.Key{ID: req.FileID, Region: req.RegionID, Kind: jobs.KindCubeHistogram}); err != nil &&
			!stderrors.Is(err, errors.ErrJobNotFound) {
			d.logger.Warn("cube histogram cancel failed", "file_id", req.FileID, "error", err)
		}
	}

	for _, cfg := range req.Histograms {
		if cfg.Channel == message.ChannelCube {
			if err := d.startCubeHistogramJob(f, req.RegionID, cfg); err != nil {
				d.pushError("error", err.Error(), req.FileID, req.RegionID)
				return err
			}
			continue
		}
		d.sendChannelHistogram(ctx, f, req.RegionID)
	}
	return nil
}

// startCubeHistogramJob runs a whole-cube histogram in the background,
// streaming bin-less progress reports and a single terminal histogram.
func (d *Dispatcher) startCubeHistogramJob(f *session.File, regionID int32, cfg message.HistogramConfig) error {
	mask, err := f.RegionMask(regionID)
	if err != nil {
		return err
	}
	_, stokes := f.View()
	fileID := f.ID()

	_, err = d.jobs.Submit(jobs.Key{ID: fileID, Region: regionID, Kind: jobs.KindCubeHistogram},
		func(ctx context.Context) error {
			h, err := cube.ComputeCubeHistogram(ctx, f.Source(), stokes, mask,
				cfg.NumBins, cfg.Bounds, func(p float64) {
					if ctx.Err() != nil || p >= 1.0 {
						return
					}
					d.sendProgress(message.EventRegionHistogramData, message.RegionHistogramData{
						FileID:   fileID,
						RegionID: regionID,
						Channel:  message.ChannelCube,
						Stokes:   stokes,
						Progress: p,
					})
				})
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			d.sendData(message.EventRegionHistogramData, message.RegionHistogramData{
				FileID:         fileID,
				RegionID:       regionID,
				Channel:        message.ChannelCube,
				Stokes:         stokes,
				NumBins:        h.NumBins,
				BinWidth:       h.BinWidth,
				FirstBinCenter: h.FirstBinCenter,
				Bins:           h.Bins,
				Mean:           h.Mean,
				StdDev:         h.StdDev,
				Progress:       1.0,
			})
			return nil
		}, nil)
	return err
}

func (d *Dispatcher) handleSetSpatialRequirements(ctx context.Context, frame message.Frame) error {
	var req message.SetSpatialRequirements
	if err := decode(frame, &req); err != nil {
		d.pushError("error", err.Error(), req.FileID, req.RegionID)
		return err
	}
	f, err := d.session().File(req.FileID)
	if err != nil {
		d.pushError("error", err.Error(), req.FileID, req.RegionID)
		return err
	}

	f.SetSpatialRequirements(req.RegionID, req.Profiles)
	if len(req.Profiles) > 0 {
		d.sendSpatialProfiles(ctx, f)
	}
	return nil
}

func (d *Dispatcher) handleSetSpectralRequirements(_ context.Context, frame message.Frame) error {
	var req message.SetSpectralRequirements
	if err := decode(frame, &req); err != nil {
		d.pushError("error", err.Error(), req.FileID, req.RegionID)
		return err
	}
	f, err := d.session().File(req.FileID)
	if err != nil {
		d.pushError("error", err.Error(), req.FileID, req.RegionID)
		return err
	}

	if f.SetSpectralRequirements(req.RegionID, req.Profiles) {
		if err := d.jobs.Cancel(jobs.Key{ID: req.FileID, Region: req.RegionID, Kind: jobs.KindSpectralProfile}); err != nil &&
			!stderrors.Is(err, errors.ErrJobNotFound) {
			d.logger.Warn("spectral profile cancel failed",
				"file_id", req.FileID, "region_id", req.RegionID, "error", err)
		}
	}
	if len(req.Profiles) == 0 {
		return nil
	}
	if err := d.startSpectralProfileJob(f, req.RegionID, req.Profiles); err != nil {
		d.pushError("error", err.Error(), req.FileID, req.RegionID)
		return err
	}
	return nil
}

// startSpectralProfileJob evaluates every requested statistic along the
// spectral axis in the background. Progress is reported across all the
// statistics combined; values arrive only in the terminal message.
func (d *Dispatcher) startSpectralProfileJob(f *session.File, regionID int32, specs []message.SpectralProfileSpec) error {
	mask, err := f.RegionMask(regionID)
	if err != nil {
		return err
	}
	_, stokes := f.View()
	fileID := f.ID()

	total := 0
	for _, spec := range specs {
		total += len(spec.StatsTypes)
	}
	if total == 0 {
		return nil
	}

	_, err = d.jobs.Submit(jobs.Key{ID: fileID, Region: regionID, Kind: jobs.KindSpectralProfile},
		func(ctx context.Context) error {
			profiles := make([]message.SpectralProfile, 0, total)
			done := 0
			for _, spec := range specs {
				for _, st := range spec.StatsTypes {
					values, err := cube.ComputeSpectralProfile(ctx, f.Source(), stokes, mask, st,
						func(p float64) {
							if ctx.Err() != nil {
								return
							}
							overall := (float64(done) + p) / float64(total)
							if overall >= 1.0 {
								return
							}
							d.sendProgress(message.EventSpectralProfileData, message.SpectralProfileData{
								FileID:   fileID,
								RegionID: regionID,
								Stokes:   stokes,
								Progress: overall,
							})
						})
					if err != nil {
						return err
					}
					profiles = append(profiles, message.SpectralProfile{
						Coordinate: spec.Coordinate,
						StatsType:  st,
						Values:     values,
					})
					done++
				}
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			d.sendData(message.EventSpectralProfileData, message.SpectralProfileData{
				FileID:   fileID,
				RegionID: regionID,
				Stokes:   stokes,
				Progress: 1.0,
				Profiles: profiles,
			})
			return nil
		}, nil)
	return err
}

func (d *Dispatcher) handleSetStatsRequirements(ctx context.Context, frame message.Frame) error {
	var req message.SetStatsRequirements
	if err := decode(frame, &req); err != nil {
		d.pushError("error", err.Error(), req.FileID, req.RegionID)
		return err
	}
	f, err := d.session().File(req.FileID)
	if err != nil {
		d.pushError("error", err.Error(), req.FileID, req.RegionID)
		return err
	}

	f.SetStatsRequirements(req.RegionID, req.StatsTypes)
	if len(req.StatsTypes) > 0 {
		d.sendRegionStats(ctx, f, req.RegionID)
	}
	return nil
}

func (d *Dispatcher) handleSetContourParameters(ctx context.Context, frame message.Frame) error {
	var req message.SetContourParameters
	if err := decode(frame, &req); err != nil {
		d.pushError("error", err.Error(), req.FileID, 0)
		return err
	}
	f, err := d.session().File(req.FileID)
	if err != nil {
		d.pushError("error", err.Error(), req.FileID, 0)
		return err
	}

	f.SetContourParameters(req)
	if len(req.Levels) > 0 {
		d.sendContours(ctx, f)
	}
	return nil
}

func (d *Dispatcher) handleSetVectorOverlayParameters(ctx context.Context, frame message.Frame) error {
	var req message.SetVectorOverlayParameters
	if err := decode(frame, &req); err != nil {
		d.pushError("error", err.Error(), req.FileID, 0)
		return err
	}
	f, err := d.session().File(req.FileID)
	if err != nil {
		d.pushError("error", err.Error(), req.FileID, 0)
		return err
	}

	f.SetVectorOverlayParameters(req)
	d.sendVectorOverlay(ctx, f, req)
	return nil
}

// sendVectorOverlay computes polarization vectors from the Stokes Q and U
// planes of the current channel and streams them as one tile.
func (d *Dispatcher) sendVectorOverlay(ctx context.Context, f *session.File, params message.SetVectorOverlayParameters) {
	shape := f.Shape()
	if shape.Stokes < 3 {
		d.pushError("warning", "File id "+itoa(f.ID())+" has no Stokes Q/U planes", f.ID(), 0)
		return
	}

	channel, _ := f.View()
	q, err := f.Source().ChannelSlice(ctx, channel, 1)
	if err != nil {
		d.pushError("error", err.Error(), f.ID(), 0)
		return
	}
	u, err := f.Source().ChannelSlice(ctx, channel, 2)
	if err != nil {
		d.pushError("error", err.Error(), f.ID(), 0)
		return
	}

	intensity, angle := cube.PolarizationVectors(q, u, params.Threshold)
	d.sendData(message.EventVectorOverlayTileData, message.VectorOverlayTileData{
		FileID:    f.ID(),
		Channel:   channel,
		Stokes:    0,
		Tile:      message.EncodeTile(0, 0, 0),
		Progress:  1.0,
		Intensity: intensity,
		Angle:     angle,
	})
}
