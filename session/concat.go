package session

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/c360/cubestream/cube"
	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
)

// stokesOrder gives the conventional axis order for polarization types.
var stokesOrder = map[string]int{"I": 0, "Q": 1, "U": 2, "V": 3}

// ConcatStokes opens the named per-polarization files and combines them
// into one cube registered under fileID. All inputs must share one image
// shape and each polarization type may appear once; a violation rejects
// the whole request and opens nothing.
func (s *Session) ConcatStokes(fileID int32, parts []message.StokesFileSource) (*File, error) {
	if len(parts) < 2 {
		return nil, rejectf(errors.ErrInvalidData,
			"Stokes concatenation needs at least two input files, got %d", len(parts))
	}

	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		if _, ok := stokesOrder[p.StokesType]; !ok {
			return nil, rejectf(errors.ErrInvalidData,
				"Unknown Stokes type %q", p.StokesType)
		}
		if seen[p.StokesType] {
			return nil, rejectf(errors.ErrInvalidData,
				"Duplicate Stokes type found: %s", p.StokesType)
		}
		seen[p.StokesType] = true
	}

	ordered := make([]message.StokesFileSource, len(parts))
	copy(ordered, parts)
	sort.Slice(ordered, func(i, j int) bool {
		return stokesOrder[ordered[i].StokesType] < stokesOrder[ordered[j].StokesType]
	})

	sources := make([]cube.Source, 0, len(ordered))
	closeAll := func() {
		for _, src := range sources {
			closeSource(src)
		}
	}

	for _, p := range ordered {
		src, err := s.opener(p.Directory, p.File, p.HDU)
		if err != nil {
			closeAll()
			return nil, errors.Wrap(err, "Session", "ConcatStokes", "open input")
		}
		sources = append(sources, src)
	}

	base := sources[0].Shape()
	for i, src := range sources[1:] {
		shape := src.Shape()
		if shape.Width != base.Width || shape.Height != base.Height ||
			shape.Channels != base.Channels {
			closeAll()
			return nil, rejectf(errors.ErrInvalidData,
				"The image shapes of %q and %q are not consistent!",
				ordered[0].File, ordered[i+1].File)
		}
	}

	names := make([]string, len(ordered))
	for i, p := range ordered {
		names[i] = p.File
	}
	combined := &stokesConcatSource{
		name: fmt.Sprintf("concat[%s]", strings.Join(names, ",")),
		shape: cube.Shape{
			Width:    base.Width,
			Height:   base.Height,
			Channels: base.Channels,
			Stokes:   int32(len(sources)),
		},
		parts: sources,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		closeAll()
		return nil, errors.ErrSessionClosed
	}
	if _, ok := s.files[fileID]; ok {
		closeAll()
		return nil, rejectf(errors.ErrFileIDInUse, "File id %d already in use", fileID)
	}

	f := newFile(fileID, "", combined.name, "", combined)
	s.files[fileID] = f
	s.logger.Info("stokes files concatenated",
		"file_id", fileID, "inputs", len(sources))
	return f, nil
}

// stokesConcatSource stacks single-polarization sources along the stokes
// axis. The stokes index selects the underlying source; each part is read
// at its own stokes 0.
type stokesConcatSource struct {
	name  string
	shape cube.Shape
	parts []cube.Source
}

func (c *stokesConcatSource) Name() string { return c.name }

func (c *stokesConcatSource) Shape() cube.Shape { return c.shape }

func (c *stokesConcatSource) ChannelSlice(ctx context.Context, channel, stokes int32) ([]float32, error) {
	if stokes < 0 || int(stokes) >= len(c.parts) {
		return nil, errors.WrapInvalid(errors.ErrChannelOutOfRange,
			"stokesConcatSource", "ChannelSlice",
			fmt.Sprintf("stokes %d of %d", stokes, len(c.parts)))
	}
	return c.parts[stokes].ChannelSlice(ctx, channel, 0)
}

func (c *stokesConcatSource) Close() error {
	var firstErr error
	for _, src := range c.parts {
		if closer, ok := src.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
