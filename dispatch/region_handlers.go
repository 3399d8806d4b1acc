package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
)

// listedRegionFiles is the synthetic region file listing.
var listedRegionFiles = []string{
	"sources.crtf",
	"calibrators.reg",
}

func (d *Dispatcher) handleSetRegion(ctx context.Context, frame message.Frame) error {
	var req message.SetRegion
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventSetRegionAck, frame.RequestID,
			message.SetRegionAck{Ack: failAck(err)})
		return err
	}
	f, err := d.session().File(req.FileID)
	if err != nil {
		d.sendControl(message.EventSetRegionAck, frame.RequestID,
			message.SetRegionAck{Ack: failAck(err)})
		return err
	}

	regionID, err := f.SetRegion(req.RegionID, req.RegionInfo)
	if err != nil {
		d.sendControl(message.EventSetRegionAck, frame.RequestID,
			message.SetRegionAck{Ack: failAck(err), RegionID: req.RegionID})
		return err
	}
	d.sendControl(message.EventSetRegionAck, frame.RequestID,
		message.SetRegionAck{Ack: message.Ack{Success: true}, RegionID: regionID})

	// A moved region re-drives everything bound to it.
	d.sendRegionStats(ctx, f, regionID)
	d.resubmitPreviews(ctx, req.FileID, regionID)
	return nil
}

// resubmitPreviews regenerates every live PV preview attached to a region
// that just moved.
func (d *Dispatcher) resubmitPreviews(ctx context.Context, fileID, regionID int32) {
	d.mu.Lock()
	var stale []message.PvRequest
	for _, req := range d.previews {
		if req.FileID == fileID && req.RegionID == regionID {
			stale = append(stale, req)
		}
	}
	d.mu.Unlock()

	for _, req := range stale {
		if err := d.startPvJob(ctx, 0, req); err != nil {
			d.logger.Warn("preview resubmit failed",
				"preview_id", req.PreviewID, "error", err)
		}
	}
}

func (d *Dispatcher) handleRemoveRegion(_ context.Context, frame message.Frame) error {
	var req message.RemoveRegion
	if err := decode(frame, &req); err != nil {
		d.pushError("error", err.Error(), 0, req.RegionID)
		return err
	}
	if err := d.session().RemoveRegion(req.RegionID); err != nil {
		d.pushError("warning", err.Error(), 0, req.RegionID)
		return err
	}
	return nil
}

func (d *Dispatcher) handleRegionList(_ context.Context, frame message.Frame) error {
	var req message.RegionListRequest
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventRegionListResponse, frame.RequestID,
			message.RegionListResponse{Ack: failAck(err)})
		return err
	}
	files := make([]message.FileInfo, 0, len(listedRegionFiles))
	for _, name := range listedRegionFiles {
		files = append(files, message.FileInfo{Name: name, Type: "region"})
	}
	d.sendControl(message.EventRegionListResponse, frame.RequestID,
		message.RegionListResponse{
			Ack:       message.Ack{Success: true},
			Directory: req.Directory,
			Files:     files,
		})
	return nil
}

func (d *Dispatcher) handleRegionFileInfo(_ context.Context, frame message.Frame) error {
	var req message.RegionFileInfoRequest
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventRegionFileInfoResponse, frame.RequestID,
			message.RegionFileInfoResponse{Ack: failAck(err)})
		return err
	}
	d.sendControl(message.EventRegionFileInfoResponse, frame.RequestID,
		message.RegionFileInfoResponse{
			Ack:      message.Ack{Success: true},
			FileInfo: message.FileInfo{Name: req.File, Type: "region"},
			Contents: []string{
				"rectangle pixel 16 16 8 8",
				"point pixel 4 4",
			},
		})
	return nil
}

func (d *Dispatcher) handleImportRegion(_ context.Context, frame message.Frame) error {
	var req message.ImportRegion
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventImportRegionAck, frame.RequestID,
			message.ImportRegionAck{Ack: failAck(err)})
		return err
	}
	f, err := d.session().File(req.GroupID)
	if err != nil {
		d.sendControl(message.EventImportRegionAck, frame.RequestID,
			message.ImportRegionAck{Ack: failAck(err)})
		return err
	}

	infos, err := parseRegionLines(req.Contents)
	if err != nil {
		d.sendControl(message.EventImportRegionAck, frame.RequestID,
			message.ImportRegionAck{Ack: failAck(err)})
		return err
	}

	imported := make(map[int32]message.RegionInfo, len(infos))
	for _, info := range infos {
		id, err := f.SetRegion(message.RegionIDNew, info)
		if err != nil {
			d.sendControl(message.EventImportRegionAck, frame.RequestID,
				message.ImportRegionAck{Ack: failAck(err)})
			return err
		}
		imported[id] = info
	}
	d.sendControl(message.EventImportRegionAck, frame.RequestID,
		message.ImportRegionAck{Ack: message.Ack{Success: true}, Regions: imported})
	return nil
}

func (d *Dispatcher) handleExportRegion(_ context.Context, frame message.Frame) error {
	var req message.ExportRegion
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventExportRegionAck, frame.RequestID,
			message.ExportRegionAck{Ack: failAck(err)})
		return err
	}
	f, err := d.session().File(req.FileID)
	if err != nil {
		d.sendControl(message.EventExportRegionAck, frame.RequestID,
			message.ExportRegionAck{Ack: failAck(err)})
		return err
	}
	if req.CoordType != "" && req.CoordType != "pixel" {
		d.sendControl(message.EventExportRegionAck, frame.RequestID,
			message.ExportRegionAck{Ack: message.Ack{
				Success: false,
				Message: fmt.Sprintf("Coordinate type %q is not supported for export", req.CoordType),
			}})
		return nil
	}

	contents := make([]string, 0, len(req.RegionIDs))
	for _, regionID := range req.RegionIDs {
		info, ok := f.Region(regionID)
		if !ok {
			d.sendControl(message.EventExportRegionAck, frame.RequestID,
				message.ExportRegionAck{Ack: message.Ack{
					Success: false,
					Message: fmt.Sprintf("Region id %d not found", regionID),
				}})
			return nil
		}
		contents = append(contents, formatRegionLine(info))
	}
	d.sendControl(message.EventExportRegionAck, frame.RequestID,
		message.ExportRegionAck{Ack: message.Ack{Success: true}, Contents: contents})
	return nil
}

// parseRegionLines decodes the simple line-per-region exchange format:
//
//	<type> <coordsys> x1 y1 [x2 y2 ...] [rot=<degrees>]
//
// All regions in one import must share a coordinate system, and only
// pixel coordinates can be resolved against an open image.
func parseRegionLines(lines []string) ([]message.RegionInfo, error) {
	var infos []message.RegionInfo
	coordSeen := ""

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, rejectLine(line, "too few fields")
		}

		coord := fields[1]
		if coord != "pixel" && coord != "world" {
			return nil, rejectLine(line, "coordinate system must be pixel or world")
		}
		if coordSeen == "" {
			coordSeen = coord
		} else if coordSeen != coord {
			return nil, &errors.ClassifiedError{
				Class:   errors.ErrorInvalid,
				Err:     errors.ErrInvalidData,
				Message: "Regions with mixed coordinate systems cannot be imported together",
			}
		}

		var regionType message.RegionType
		switch fields[0] {
		case "point":
			regionType = message.RegionPoint
		case "rectangle":
			regionType = message.RegionRectangle
		case "ellipse":
			regionType = message.RegionEllipse
		case "polygon":
			regionType = message.RegionPolygon
		case "line":
			regionType = message.RegionLine
		case "polyline":
			regionType = message.RegionPolyline
		case "annulus":
			regionType = message.RegionAnnulus
		default:
			return nil, rejectLine(line, "unknown region type "+fields[0])
		}

		rotation := 0.0
		coords := fields[2:]
		if last := coords[len(coords)-1]; strings.HasPrefix(last, "rot=") {
			rot, err := strconv.ParseFloat(strings.TrimPrefix(last, "rot="), 64)
			if err != nil {
				return nil, rejectLine(line, "bad rotation")
			}
			rotation = rot
			coords = coords[:len(coords)-1]
		}
		if len(coords)%2 != 0 {
			return nil, rejectLine(line, "odd coordinate count")
		}

		points := make([]message.Point, 0, len(coords)/2)
		for i := 0; i < len(coords); i += 2 {
			x, errX := strconv.ParseFloat(coords[i], 64)
			y, errY := strconv.ParseFloat(coords[i+1], 64)
			if errX != nil || errY != nil {
				return nil, rejectLine(line, "bad coordinate")
			}
			points = append(points, message.Point{X: x, Y: y})
		}
		infos = append(infos, message.RegionInfo{
			RegionType:    regionType,
			ControlPoints: points,
			Rotation:      rotation,
		})
	}

	if coordSeen == "world" {
		return nil, &errors.ClassifiedError{
			Class:   errors.ErrorInvalid,
			Err:     errors.ErrInvalidData,
			Message: "World coordinate regions cannot be imported without image astrometry",
		}
	}
	if len(infos) == 0 {
		return nil, &errors.ClassifiedError{
			Class:   errors.ErrorInvalid,
			Err:     errors.ErrInvalidData,
			Message: "Region import contains no regions",
		}
	}
	return infos, nil
}

func rejectLine(line, reason string) error {
	return &errors.ClassifiedError{
		Class:   errors.ErrorInvalid,
		Err:     errors.ErrInvalidData,
		Message: fmt.Sprintf("Bad region line %q: %s", line, reason),
	}
}

// formatRegionLine encodes one region in the exchange format parsed by
// parseRegionLines.
func formatRegionLine(info message.RegionInfo) string {
	var b strings.Builder
	b.WriteString(info.RegionType.String())
	b.WriteString(" pixel")
	for _, p := range info.ControlPoints {
		fmt.Fprintf(&b, " %g %g", p.X, p.Y)
	}
	if info.Rotation != 0 {
		fmt.Fprintf(&b, " rot=%g", info.Rotation)
	}
	return b.String()
}
