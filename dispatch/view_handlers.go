package dispatch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/c360/cubestream/cube"
	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
	"github.com/c360/cubestream/session"
)

func (d *Dispatcher) handleSetImageChannels(ctx context.Context, frame message.Frame) error {
	var req message.SetImageChannels
	if err := decode(frame, &req); err != nil {
		d.pushError("error", err.Error(), req.FileID, 0)
		return err
	}
	f, err := d.session().File(req.FileID)
	if err != nil {
		d.pushError("error", err.Error(), req.FileID, 0)
		return err
	}
	if err := f.SetView(req.Channel, req.Stokes); err != nil {
		d.pushError("error", err.Error(), req.FileID, 0)
		return err
	}

	if req.RequiredTiles != nil {
		f.SetRequiredTiles(message.AddRequiredTiles{
			FileID:             req.FileID,
			Tiles:              req.RequiredTiles.Tiles,
			CompressionType:    req.RequiredTiles.CompressionType,
			CompressionQuality: req.RequiredTiles.CompressionQuality,
		})
		if err := d.sendTileBatch(ctx, f, req.RequiredTiles.Tiles, 0); err != nil {
			return err
		}
	}

	d.refreshChannelData(ctx, f)
	return nil
}

func (d *Dispatcher) handleSetCursor(ctx context.Context, frame message.Frame) error {
	var req message.SetCursor
	if err := decode(frame, &req); err != nil {
		d.pushError("error", err.Error(), req.FileID, 0)
		return err
	}
	f, err := d.session().File(req.FileID)
	if err != nil {
		d.pushError("error", err.Error(), req.FileID, 0)
		return err
	}
	f.SetCursor(req.X, req.Y)
	d.sendSpatialProfiles(ctx, f)
	return nil
}

func (d *Dispatcher) handleAddRequiredTiles(ctx context.Context, frame message.Frame) error {
	var req message.AddRequiredTiles
	if err := decode(frame, &req); err != nil {
		d.pushError("error", err.Error(), req.FileID, 0)
		return err
	}
	f, err := d.session().File(req.FileID)
	if err != nil {
		d.pushError("error", err.Error(), req.FileID, 0)
		return err
	}
	f.SetRequiredTiles(req)
	return d.sendTileBatch(ctx, f, req.Tiles, 0)
}

// sendTileBatch extracts the requested tiles from the file's current view
// and streams them as one bracketed batch. Tiles that fall outside the
// image are skipped rather than failing the whole batch.
func (d *Dispatcher) sendTileBatch(ctx context.Context, f *session.File, tileIDs []int32, animationID int32) error {
	channel, stokes := f.View()
	slice, err := f.Source().ChannelSlice(ctx, channel, stokes)
	if err != nil {
		d.pushError("error", err.Error(), f.ID(), 0)
		return err
	}

	shape := f.Shape()
	tiles := make([]message.RasterTileData, 0, len(tileIDs))
	for _, id := range tileIDs {
		layer, tx, ty := message.DecodeTile(id)
		tile, err := cube.ExtractTile(slice, shape, layer, tx, ty)
		if err != nil {
			d.logger.Debug("tile outside image",
				"file_id", f.ID(), "tile", id, "error", err)
			continue
		}
		tiles = append(tiles, message.RasterTileData{
			Tile:      id,
			Width:     tile.Width,
			Height:    tile.Height,
			ImageData: tile.Data,
		})
	}

	if _, err := d.mux.EnqueueTileBatch(f.ID(), channel, stokes, animationID, tiles); err != nil {
		return errors.Wrap(err, "Dispatcher", "sendTileBatch", "enqueue batch")
	}
	return nil
}

// refreshChannelData re-emits everything subscribed to the current
// channel after a view change: histograms, cursor profiles, region
// statistics, and contours.
func (d *Dispatcher) refreshChannelData(ctx context.Context, f *session.File) {
	for _, regionID := range f.HistogramSubscriptionIDs() {
		if hasCurrentChannelConfig(f.HistogramRequirements(regionID)) {
			d.sendChannelHistogram(ctx, f, regionID)
		}
	}
	d.sendSpatialProfiles(ctx, f)
	for _, regionID := range f.StatsSubscriptionIDs() {
		d.sendRegionStats(ctx, f, regionID)
	}
	d.sendContours(ctx, f)
}

func hasCurrentChannelConfig(configs []message.HistogramConfig) bool {
	for _, cfg := range configs {
		if cfg.Channel == message.ChannelCurrent {
			return true
		}
	}
	return false
}

// sendChannelHistogram computes and streams the current channel's
// histogram for one region. With no stored subscription the bin count is
// automatic and the bounds follow the data.
func (d *Dispatcher) sendChannelHistogram(ctx context.Context, f *session.File, regionID int32) {
	channel, stokes := f.View()
	slice, err := f.Source().ChannelSlice(ctx, channel, stokes)
	if err != nil {
		d.pushError("error", err.Error(), f.ID(), regionID)
		return
	}
	mask, err := f.RegionMask(regionID)
	if err != nil {
		d.pushError("warning", err.Error(), f.ID(), regionID)
		return
	}

	numBins := int32(-1)
	var bounds *message.HistBounds
	if configs := f.HistogramRequirements(regionID); len(configs) > 0 {
		numBins = configs[0].NumBins
		bounds = configs[0].Bounds
	}

	h, err := cube.ComputeHistogram(slice, f.Shape(), mask, numBins, bounds)
	if err != nil {
		d.pushError("warning", err.Error(), f.ID(), regionID)
		return
	}
	d.sendData(message.EventRegionHistogramData, message.RegionHistogramData{
		FileID:         f.ID(),
		RegionID:       regionID,
		Channel:        channel,
		Stokes:         stokes,
		NumBins:        h.NumBins,
		BinWidth:       h.BinWidth,
		FirstBinCenter: h.FirstBinCenter,
		Bins:           h.Bins,
		Mean:           h.Mean,
		StdDev:         h.StdDev,
		Progress:       1.0,
	})
}

// sendSpatialProfiles streams the axis cuts through the current cursor
// for every spatially subscribed region.
func (d *Dispatcher) sendSpatialProfiles(ctx context.Context, f *session.File) {
	ids := f.SpatialSubscriptionIDs()
	if len(ids) == 0 {
		return
	}

	channel, stokes := f.View()
	slice, err := f.Source().ChannelSlice(ctx, channel, stokes)
	if err != nil {
		d.pushError("error", err.Error(), f.ID(), 0)
		return
	}

	cx, cy := f.Cursor()
	x, y := int32(cx), int32(cy)
	shape := f.Shape()

	for _, regionID := range ids {
		specs := f.SpatialRequirements(regionID)
		profiles, err := cube.ComputeSpatialProfiles(slice, shape, x, y, specs)
		if err != nil {
			d.pushError("warning", err.Error(), f.ID(), regionID)
			continue
		}
		d.sendData(message.EventSpatialProfileData, message.SpatialProfileData{
			FileID:   f.ID(),
			RegionID: regionID,
			X:        cx,
			Y:        cy,
			Channel:  channel,
			Stokes:   stokes,
			Value:    float64(cube.PixelAt(slice, shape, x, y)),
			Profiles: profiles,
		})
	}
}

// sendRegionStats streams one region's statistics for the current channel.
func (d *Dispatcher) sendRegionStats(ctx context.Context, f *session.File, regionID int32) {
	types := f.StatsRequirements(regionID)
	if len(types) == 0 {
		return
	}
	channel, stokes := f.View()
	slice, err := f.Source().ChannelSlice(ctx, channel, stokes)
	if err != nil {
		d.pushError("error", err.Error(), f.ID(), regionID)
		return
	}
	mask, err := f.RegionMask(regionID)
	if err != nil {
		d.pushError("warning", err.Error(), f.ID(), regionID)
		return
	}
	d.sendData(message.EventRegionStatsData, message.RegionStatsData{
		FileID:     f.ID(),
		RegionID:   regionID,
		Channel:    channel,
		Stokes:     stokes,
		Statistics: cube.ComputeRegionStats(slice, f.Shape(), mask, types),
	})
}

// sendContours traces and streams every subscribed contour level for the
// current channel.
func (d *Dispatcher) sendContours(ctx context.Context, f *session.File) {
	params, ok := f.ContourParameters()
	if !ok {
		return
	}
	channel, stokes := f.View()
	slice, err := f.Source().ChannelSlice(ctx, channel, stokes)
	if err != nil {
		d.pushError("error", err.Error(), f.ID(), 0)
		return
	}

	// Levels are independent; trace them in parallel and stream the
	// results in level order.
	shape := f.Shape()
	traced := make([][]float64, len(params.Levels))
	var group errgroup.Group
	for i, level := range params.Levels {
		i, level := i, level
		group.Go(func() error {
			vertices := cube.TraceContour(slice, shape, level)
			if params.DecimationFactor > 1 {
				vertices = cube.DecimateVertices(vertices, params.DecimationFactor)
			}
			traced[i] = vertices
			return nil
		})
	}
	_ = group.Wait()

	for i, level := range params.Levels {
		d.sendData(message.EventContourImageData, message.ContourImageData{
			FileID:   f.ID(),
			Channel:  channel,
			Stokes:   stokes,
			Level:    level,
			Progress: 1.0,
			Vertices: traced[i],
		})
	}
}
