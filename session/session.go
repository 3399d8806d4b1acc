package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360/cubestream/cube"
	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
)

// SourceOpener resolves a named file to a cube data source. The server
// wires in a synthetic opener; tests substitute their own.
type SourceOpener func(directory, file, hdu string) (cube.Source, error)

// DerivedKind selects the id allocation range for server-synthesized
// output files.
type DerivedKind int

// Derived product kinds.
const (
	DerivedPv DerivedKind = iota
	DerivedMoment
)

// Session is the server-side state for one viewer: open files, regions,
// and requirement subscriptions. All methods are safe for concurrent use.
type Session struct {
	id        string
	createdAt time.Time
	logger    *slog.Logger
	opener    SourceOpener

	mu           sync.RWMutex
	files        map[int32]*File
	closed       bool
	nextPvID     int32
	nextMomentID int32
}

// New creates a session. The logger may be nil.
func New(id string, opener SourceOpener, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:        id,
		createdAt: time.Now(),
		logger:    logger.With("session_id", id),
		opener:    opener,

		files:        make(map[int32]*File),
		nextPvID:     message.FileIDPvBase,
		nextMomentID: message.FileIDMomentBase,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// OpenFile opens a source under a client-chosen id. Reusing a live id is
// rejected; clients close first.
func (s *Session) OpenFile(fileID int32, directory, file, hdu string) (*File, error) {
	if fileID < 0 {
		return nil, rejectf(errors.ErrInvalidData,
			"File id %d is reserved for server products", fileID)
	}

	source, err := s.opener(directory, file, hdu)
	if err != nil {
		return nil, errors.Wrap(err, "Session", "OpenFile", "open source")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		closeSource(source)
		return nil, errors.ErrSessionClosed
	}
	if _, ok := s.files[fileID]; ok {
		closeSource(source)
		return nil, rejectf(errors.ErrFileIDInUse, "File id %d already in use", fileID)
	}

	f := newFile(fileID, directory, file, hdu, source)
	s.files[fileID] = f
	s.logger.Info("file opened", "file_id", fileID, "file", file)
	return f, nil
}

// OpenDerived registers a server-synthesized source under the next id in
// the kind's allocation range and returns the new file.
func (s *Session) OpenDerived(kind DerivedKind, name string, source cube.Source) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.ErrSessionClosed
	}

	var fileID int32
	switch kind {
	case DerivedPv:
		fileID = s.nextPvID
		s.nextPvID--
	case DerivedMoment:
		fileID = s.nextMomentID
		s.nextMomentID--
	default:
		return nil, rejectf(errors.ErrInvalidData, "Unknown derived product kind %d", kind)
	}

	f := newFile(fileID, "", name, "", source)
	s.files[fileID] = f
	s.logger.Info("derived file registered", "file_id", fileID, "name", name)
	return f, nil
}

// File returns the open file for an id.
func (s *Session) File(fileID int32) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[fileID]
	if !ok {
		return nil, rejectf(errors.ErrFileNotFound, "File id %d not found", fileID)
	}
	return f, nil
}

// FileIDs returns the open file ids in ascending order.
func (s *Session) FileIDs() []int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int32, 0, len(s.files))
	for id := range s.files {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CloseFile closes one file, or every open file when fileID is FileIDAll.
// It returns the ids that were closed so the caller can cancel their jobs
// and animations.
func (s *Session) CloseFile(fileID int32) ([]int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fileID == message.FileIDAll {
		closed := make([]int32, 0, len(s.files))
		for id, f := range s.files {
			if err := f.close(); err != nil {
				s.logger.Warn("source close failed", "file_id", id, "error", err)
			}
			closed = append(closed, id)
			delete(s.files, id)
		}
		sort.Slice(closed, func(i, j int) bool { return closed[i] < closed[j] })
		s.logger.Info("all files closed", "count", len(closed))
		return closed, nil
	}

	f, ok := s.files[fileID]
	if !ok {
		return nil, rejectf(errors.ErrFileNotFound, "File id %d not found", fileID)
	}
	if err := f.close(); err != nil {
		s.logger.Warn("source close failed", "file_id", fileID, "error", err)
	}
	delete(s.files, fileID)
	s.logger.Info("file closed", "file_id", fileID)
	return []int32{fileID}, nil
}

// RemoveRegion deletes a region by id from whichever file owns it.
// Region ids are unique per file, not per session, so the first match
// wins; the protocol's remove request carries no file id.
func (s *Session) RemoveRegion(regionID int32) error {
	if regionID < 0 {
		return rejectf(errors.ErrRegionImmutable,
			"Region id %d is reserved and cannot be removed", regionID)
	}
	s.mu.RLock()
	var owner *File
	for _, f := range s.files {
		if _, ok := f.Region(regionID); ok {
			owner = f
			break
		}
	}
	s.mu.RUnlock()
	if owner == nil {
		return rejectf(errors.ErrRegionNotFound, "Region id %d not found", regionID)
	}
	return owner.RemoveRegion(regionID)
}

// Close tears down the session and releases every open source. Further
// opens fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id, f := range s.files {
		if err := f.close(); err != nil {
			s.logger.Warn("source close failed", "file_id", id, "error", err)
		}
		delete(s.files, id)
	}
	s.logger.Info("session closed")
	return nil
}

func closeSource(src cube.Source) {
	if closer, ok := src.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

// SyntheticOpener returns a SourceOpener backed by deterministic
// in-memory cubes of the given shape. The directory, file name, and HDU
// seed the pixel data, so reopening the same name yields the same cube.
func SyntheticOpener(shape cube.Shape) SourceOpener {
	return func(directory, file, hdu string) (cube.Source, error) {
		if file == "" {
			return nil, rejectf(errors.ErrInvalidData, "File name must not be empty")
		}
		name := fmt.Sprintf("%s/%s", directory, file)
		if hdu != "" {
			name = fmt.Sprintf("%s:%s", name, hdu)
		}
		return cube.NewSynthetic(name, shape)
	}
}
