package session

import (
	"sort"
	"time"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
)

// Snapshot is a compact, serializable description of a session's open
// files and regions. It carries no pixel data; restoring reopens sources
// by name through the session's opener.
type Snapshot struct {
	SessionID string         `json:"session_id"`
	TakenAt   time.Time      `json:"taken_at"`
	Files     []FileSnapshot `json:"files"`
}

// FileSnapshot records one open file's identity and view state. Derived
// files are not snapshotted; their data cannot be reopened by name.
type FileSnapshot struct {
	FileID    int32                        `json:"file_id"`
	Directory string                       `json:"directory"`
	File      string                       `json:"file"`
	HDU       string                       `json:"hdu,omitempty"`
	Channel   int32                        `json:"channel"`
	Stokes    int32                        `json:"stokes"`
	Regions   map[int32]message.RegionInfo `json:"regions,omitempty"`
}

// Snapshot captures the session's restorable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{SessionID: s.id, TakenAt: time.Now()}
	for _, id := range sortedFileIDs(s.files) {
		if message.IsDerivedFileID(id) {
			continue
		}
		f := s.files[id]
		channel, stokes := f.View()
		snap.Files = append(snap.Files, FileSnapshot{
			FileID:    id,
			Directory: f.directory,
			File:      f.name,
			HDU:       f.hdu,
			Channel:   channel,
			Stokes:    stokes,
			Regions:   f.Regions(),
		})
	}
	return snap
}

// Restore reopens a snapshot's files and regions into this session. The
// session must be empty; a partial failure closes everything opened so
// far and leaves the session empty again.
func (s *Session) Restore(snap Snapshot) error {
	if len(s.FileIDs()) > 0 {
		return errors.WrapInvalid(errors.ErrInvalidData,
			"Session", "Restore", "session already has open files")
	}

	for _, fs := range snap.Files {
		f, err := s.OpenFile(fs.FileID, fs.Directory, fs.File, fs.HDU)
		if err != nil {
			s.restoreFailed(snap)
			return errors.Wrap(err, "Session", "Restore", "reopen file")
		}
		if err := f.SetView(fs.Channel, fs.Stokes); err != nil {
			s.restoreFailed(snap)
			return errors.Wrap(err, "Session", "Restore", "restore view")
		}
		for regionID, info := range fs.Regions {
			if err := f.restoreRegion(regionID, info); err != nil {
				s.restoreFailed(snap)
				return errors.Wrap(err, "Session", "Restore", "restore region")
			}
		}
	}
	return nil
}

func (s *Session) restoreFailed(snap Snapshot) {
	if _, err := s.CloseFile(message.FileIDAll); err != nil {
		s.logger.Warn("cleanup after failed restore", "error", err)
	}
	s.logger.Warn("session restore failed", "snapshot_files", len(snap.Files))
}

// SnapshotFromResume converts a client-supplied resume request into a
// snapshot, for sessions restored from the wire rather than from storage.
func SnapshotFromResume(req message.ResumeSession) Snapshot {
	snap := Snapshot{SessionID: req.SessionID, TakenAt: time.Now()}
	for _, rf := range req.Files {
		snap.Files = append(snap.Files, FileSnapshot{
			FileID:    rf.FileID,
			Directory: rf.Directory,
			File:      rf.File,
			HDU:       rf.HDU,
			Channel:   rf.Channel,
			Stokes:    rf.Stokes,
			Regions:   rf.Regions,
		})
	}
	return snap
}

func sortedFileIDs(files map[int32]*File) []int32 {
	ids := make([]int32, 0, len(files))
	for id := range files {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
