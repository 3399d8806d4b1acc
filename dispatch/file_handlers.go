package dispatch

import (
	"context"
	"fmt"

	"github.com/c360/cubestream/cube"
	"github.com/c360/cubestream/message"
	"github.com/c360/cubestream/session"
)

// listedCubes is the synthetic directory listing. Every name opens
// successfully against the synthetic source opener.
var listedCubes = []string{
	"cube_A_00512_z00064.image",
	"cube_B_09600_z00100.image",
	"cube_C_01024_z00256.image",
	"m81_continuum.fits",
	"smc_hi_survey.fits",
}

func shapeSlice(shape cube.Shape) []int32 {
	return []int32{shape.Width, shape.Height, shape.Channels, shape.Stokes}
}

func (d *Dispatcher) handleRegisterViewer(ctx context.Context, frame message.Frame) error {
	var req message.RegisterViewer
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventRegisterViewerAck, frame.RequestID,
			message.RegisterViewerAck{Ack: failAck(err)})
		return err
	}

	if d.session() != nil {
		d.sendControl(message.EventRegisterViewerAck, frame.RequestID,
			message.RegisterViewerAck{
				Ack:       message.Ack{Success: false, Message: "Viewer already registered"},
				SessionID: d.session().ID(),
			})
		return nil
	}

	sess, err := d.registry.Create(req.SessionID)
	if err != nil {
		d.sendControl(message.EventRegisterViewerAck, frame.RequestID,
			message.RegisterViewerAck{Ack: failAck(err)})
		return err
	}

	sessionType := "new"
	if req.SessionID != "" && d.store != nil {
		if snap, loadErr := d.store.Load(ctx, req.SessionID); loadErr == nil {
			if restoreErr := sess.Restore(snap); restoreErr == nil {
				sessionType = "resumed"
			} else {
				d.logger.Warn("snapshot restore failed",
					"session_id", req.SessionID, "error", restoreErr)
			}
		}
	}

	d.bindSession(sess)
	d.sendControl(message.EventRegisterViewerAck, frame.RequestID,
		message.RegisterViewerAck{
			Ack:         message.Ack{Success: true},
			SessionID:   sess.ID(),
			SessionType: sessionType,
		})
	return nil
}

func (d *Dispatcher) handleResumeSession(ctx context.Context, frame message.Frame) error {
	var req message.ResumeSession
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventResumeSessionAck, frame.RequestID,
			message.ResumeSessionAck{Ack: failAck(err)})
		return err
	}
	sess := d.session()

	// Resume replaces the session's state wholesale.
	if closed, err := sess.CloseFile(message.FileIDAll); err == nil {
		for _, id := range closed {
			d.teardownFile(id)
		}
	}

	snap := session.SnapshotFromResume(req)
	if len(req.Files) == 0 && d.store != nil {
		if stored, err := d.store.Load(ctx, req.SessionID); err == nil {
			snap = stored
		}
	}

	if err := sess.Restore(snap); err != nil {
		d.sendControl(message.EventResumeSessionAck, frame.RequestID,
			message.ResumeSessionAck{Ack: failAck(err)})
		return err
	}
	d.sendControl(message.EventResumeSessionAck, frame.RequestID,
		message.ResumeSessionAck{Ack: message.Ack{Success: true}})
	return nil
}

// handleFileList also serves as the liveness probe: it answers at all
// times, including right after aborted operations.
func (d *Dispatcher) handleFileList(_ context.Context, frame message.Frame) error {
	var req message.FileListRequest
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventFileListResponse, frame.RequestID,
			message.FileListResponse{Ack: failAck(err)})
		return err
	}

	files := make([]message.FileInfo, 0, len(listedCubes))
	for _, name := range listedCubes {
		files = append(files, message.FileInfo{
			Name: name,
			Type: "cube",
			HDUs: []string{"0"},
		})
	}
	d.sendControl(message.EventFileListResponse, frame.RequestID,
		message.FileListResponse{
			Ack:            message.Ack{Success: true},
			Directory:      req.Directory,
			Files:          files,
			Subdirectories: []string{"archive"},
		})
	return nil
}

func (d *Dispatcher) handleFileInfo(_ context.Context, frame message.Frame) error {
	var req message.FileInfoRequest
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventFileInfoResponse, frame.RequestID,
			message.FileInfoResponse{Ack: failAck(err)})
		return err
	}

	src, err := d.opener(req.Directory, req.File, req.HDU)
	if err != nil {
		d.sendControl(message.EventFileInfoResponse, frame.RequestID,
			message.FileInfoResponse{Ack: failAck(err)})
		return err
	}
	shape := src.Shape()
	if closer, ok := src.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	d.sendControl(message.EventFileInfoResponse, frame.RequestID,
		message.FileInfoResponse{
			Ack:      message.Ack{Success: true},
			FileInfo: message.FileInfo{Name: req.File, Type: "cube", HDUs: []string{"0"}},
			Headers: map[string]string{
				"NAXIS":  "4",
				"NAXIS1": fmt.Sprint(shape.Width),
				"NAXIS2": fmt.Sprint(shape.Height),
				"NAXIS3": fmt.Sprint(shape.Channels),
				"NAXIS4": fmt.Sprint(shape.Stokes),
			},
			Shape: shapeSlice(shape),
		})
	return nil
}

func (d *Dispatcher) handleOpenFile(ctx context.Context, frame message.Frame) error {
	var req message.OpenFile
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventOpenFileAck, frame.RequestID,
			message.OpenFileAck{Ack: failAck(err), FileID: req.FileID})
		return err
	}

	f, err := d.session().OpenFile(req.FileID, req.Directory, req.File, req.HDU)
	if err != nil {
		d.sendControl(message.EventOpenFileAck, frame.RequestID,
			message.OpenFileAck{Ack: failAck(err), FileID: req.FileID})
		return err
	}

	d.sendControl(message.EventOpenFileAck, frame.RequestID,
		message.OpenFileAck{
			Ack:      message.Ack{Success: true},
			FileID:   f.ID(),
			FileInfo: f.Info(),
			Shape:    shapeSlice(f.Shape()),
		})

	// The viewer renders immediately from the first channel's histogram.
	d.sendChannelHistogram(ctx, f, message.RegionIDImage)
	return nil
}

// handleCloseFile has no ack. Jobs and animations owned by the closed
// files are cancelled first.
func (d *Dispatcher) handleCloseFile(_ context.Context, frame message.Frame) error {
	var req message.CloseFile
	if err := decode(frame, &req); err != nil {
		d.pushError("error", err.Error(), req.FileID, 0)
		return err
	}

	closed, err := d.session().CloseFile(req.FileID)
	if err != nil {
		d.pushError("error", err.Error(), req.FileID, 0)
		return err
	}
	for _, id := range closed {
		d.teardownFile(id)
	}
	return nil
}

// teardownFile cancels everything a closed file owns.
func (d *Dispatcher) teardownFile(fileID int32) {
	if d.jobs != nil {
		d.jobs.CancelAllForID(fileID)
	}
	if d.anims != nil {
		d.anims.StopForFile(fileID)
	}
}

func (d *Dispatcher) handleSaveFile(_ context.Context, frame message.Frame) error {
	var req message.SaveFile
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventSaveFileAck, frame.RequestID,
			message.SaveFileAck{Ack: failAck(err), FileID: req.FileID})
		return err
	}

	if _, err := d.session().File(req.FileID); err != nil {
		d.sendControl(message.EventSaveFileAck, frame.RequestID,
			message.SaveFileAck{Ack: failAck(err), FileID: req.FileID})
		return err
	}
	if req.OutputName == "" {
		d.sendControl(message.EventSaveFileAck, frame.RequestID,
			message.SaveFileAck{
				Ack:    message.Ack{Success: false, Message: "Output file name must not be empty"},
				FileID: req.FileID,
			})
		return nil
	}

	d.logger.Info("file saved", "file_id", req.FileID, "output", req.OutputName)
	d.sendControl(message.EventSaveFileAck, frame.RequestID,
		message.SaveFileAck{Ack: message.Ack{Success: true}, FileID: req.FileID})
	return nil
}

func (d *Dispatcher) handleConcatStokesFiles(_ context.Context, frame message.Frame) error {
	var req message.ConcatStokesFiles
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventConcatStokesFilesAck, frame.RequestID,
			message.ConcatStokesFilesAck{Ack: failAck(err), FileID: req.FileID})
		return err
	}

	f, err := d.session().ConcatStokes(req.FileID, req.Files)
	if err != nil {
		d.sendControl(message.EventConcatStokesFilesAck, frame.RequestID,
			message.ConcatStokesFilesAck{Ack: failAck(err), FileID: req.FileID})
		return err
	}

	d.sendControl(message.EventConcatStokesFilesAck, frame.RequestID,
		message.ConcatStokesFilesAck{
			Ack:      message.Ack{Success: true},
			FileID:   f.ID(),
			FileInfo: f.Info(),
			Shape:    shapeSlice(f.Shape()),
		})
	return nil
}
