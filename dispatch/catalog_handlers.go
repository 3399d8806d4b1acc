package dispatch

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"strings"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
)

// listedCatalogs is the synthetic catalog listing.
var listedCatalogs = []string{
	"gaia_dr3_subset.xml",
	"source_catalog.vot",
}

const defaultCatalogRows = 200

// catalogTable is one open catalog: fixed columns of stringified values,
// generated deterministically from the catalog name.
type catalogTable struct {
	name    string
	headers []message.CatalogHeader
	columns map[string][]string
	rows    int
}

// newCatalogTable synthesizes a catalog. The same name always yields the
// same rows.
func newCatalogTable(directory, name string) *catalogTable {
	h := fnv.New64a()
	h.Write([]byte(directory + "/" + name))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	t := &catalogTable{
		name: name,
		headers: []message.CatalogHeader{
			{Name: "RA", DataType: "double", ColumnIndex: 0, Units: "deg"},
			{Name: "Dec", DataType: "double", ColumnIndex: 1, Units: "deg"},
			{Name: "Flux", DataType: "double", ColumnIndex: 2, Units: "mJy"},
		},
		columns: map[string][]string{},
		rows:    defaultCatalogRows,
	}

	ra := make([]string, t.rows)
	dec := make([]string, t.rows)
	flux := make([]string, t.rows)
	for i := 0; i < t.rows; i++ {
		ra[i] = strconv.FormatFloat(rng.Float64()*360, 'f', 6, 64)
		dec[i] = strconv.FormatFloat(rng.Float64()*180-90, 'f', 6, 64)
		flux[i] = strconv.FormatFloat(rng.ExpFloat64()*10, 'f', 4, 64)
	}
	t.columns["RA"] = ra
	t.columns["Dec"] = dec
	t.columns["Flux"] = flux
	return t
}

// slice returns the named columns restricted to rows [start, end).
func (t *catalogTable) slice(names []string, start, end int) map[string][]string {
	out := make(map[string][]string, len(names))
	for _, name := range names {
		col, ok := t.columns[name]
		if !ok {
			continue
		}
		out[name] = col[start:end]
	}
	return out
}

// matches evaluates every filter predicate against one row.
func (t *catalogTable) matches(row int, filters []message.CatalogFilterConfig) bool {
	for _, f := range filters {
		col, ok := t.columns[f.ColumnName]
		if !ok {
			return false
		}
		raw := col[row]
		if f.SubString != "" {
			if !strings.Contains(raw, f.SubString) {
				return false
			}
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return false
		}
		switch f.Comparison {
		case "==":
			if v != f.Value {
				return false
			}
		case "!=":
			if v == f.Value {
				return false
			}
		case "<":
			if v >= f.Value {
				return false
			}
		case ">":
			if v <= f.Value {
				return false
			}
		case "<=":
			if v > f.Value {
				return false
			}
		case ">=":
			if v < f.Value {
				return false
			}
		case "range":
			if v < f.Value || v > f.SecondaryValue {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (t *catalogTable) columnNames(indices []int32) []string {
	if len(indices) == 0 {
		names := make([]string, len(t.headers))
		for i, h := range t.headers {
			names[i] = h.Name
		}
		return names
	}
	names := make([]string, 0, len(indices))
	for _, idx := range indices {
		for _, h := range t.headers {
			if h.ColumnIndex == idx {
				names = append(names, h.Name)
			}
		}
	}
	return names
}

func (d *Dispatcher) handleCatalogList(_ context.Context, frame message.Frame) error {
	var req message.CatalogListRequest
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventCatalogListResponse, frame.RequestID,
			message.CatalogListResponse{Ack: failAck(err)})
		return err
	}
	files := make([]message.FileInfo, 0, len(listedCatalogs))
	for _, name := range listedCatalogs {
		files = append(files, message.FileInfo{Name: name, Type: "catalog"})
	}
	d.sendControl(message.EventCatalogListResponse, frame.RequestID,
		message.CatalogListResponse{
			Ack:       message.Ack{Success: true},
			Directory: req.Directory,
			Files:     files,
		})
	return nil
}

func (d *Dispatcher) handleCatalogFileInfo(_ context.Context, frame message.Frame) error {
	var req message.CatalogFileInfoRequest
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventCatalogFileInfoResponse, frame.RequestID,
			message.CatalogFileInfoResponse{Ack: failAck(err)})
		return err
	}
	t := newCatalogTable(req.Directory, req.Name)
	d.sendControl(message.EventCatalogFileInfoResponse, frame.RequestID,
		message.CatalogFileInfoResponse{
			Ack:      message.Ack{Success: true},
			FileInfo: message.FileInfo{Name: req.Name, Type: "catalog"},
			Headers:  t.headers,
			DataSize: int64(t.rows),
		})
	return nil
}

func (d *Dispatcher) handleOpenCatalogFile(_ context.Context, frame message.Frame) error {
	var req message.OpenCatalogFile
	if err := decode(frame, &req); err != nil {
		d.sendControl(message.EventOpenCatalogFileAck, frame.RequestID,
			message.OpenCatalogFileAck{Ack: failAck(err), FileID: req.FileID})
		return err
	}

	d.mu.Lock()
	if _, ok := d.catalogs[req.FileID]; ok {
		d.mu.Unlock()
		msg := fmt.Sprintf("Catalog file id %d already in use", req.FileID)
		d.sendControl(message.EventOpenCatalogFileAck, frame.RequestID,
			message.OpenCatalogFileAck{
				Ack:    message.Ack{Success: false, Message: msg},
				FileID: req.FileID,
			})
		return errors.ErrFileIDInUse
	}
	t := newCatalogTable(req.Directory, req.Name)
	d.catalogs[req.FileID] = t
	d.mu.Unlock()

	preview := int(req.PreviewDataSize)
	if preview <= 0 || preview > t.rows {
		preview = minInt(50, t.rows)
	}

	d.sendControl(message.EventOpenCatalogFileAck, frame.RequestID,
		message.OpenCatalogFileAck{
			Ack:      message.Ack{Success: true},
			FileID:   req.FileID,
			FileInfo: message.FileInfo{Name: req.Name, Type: "catalog"},
			Headers:  t.headers,
			DataSize: int64(t.rows),
			Columns:  t.slice(t.columnNames(nil), 0, preview),
		})
	return nil
}

func (d *Dispatcher) handleCloseCatalogFile(_ context.Context, frame message.Frame) error {
	var req message.CloseCatalogFile
	if err := decode(frame, &req); err != nil {
		return err
	}
	d.mu.Lock()
	delete(d.catalogs, req.FileID)
	d.mu.Unlock()
	return nil
}

// catalogFilterChunk caps one CatalogFilterResponse's row count.
const catalogFilterChunk = 50

func (d *Dispatcher) handleSetCatalogFilter(_ context.Context, frame message.Frame) error {
	var req message.SetCatalogFilterRequest
	if err := decode(frame, &req); err != nil {
		d.pushError("error", err.Error(), req.FileID, 0)
		return err
	}

	d.mu.Lock()
	t, ok := d.catalogs[req.FileID]
	d.mu.Unlock()
	if !ok {
		msg := fmt.Sprintf("Catalog file id %d not found", req.FileID)
		d.pushError("error", msg, req.FileID, 0)
		return errors.ErrFileNotFound
	}

	matched := make([]int, 0, t.rows)
	for row := 0; row < t.rows; row++ {
		if t.matches(row, req.FilterConfigs) {
			matched = append(matched, row)
		}
	}

	start := int(req.SubsetStartIndex)
	if start < 0 || start > len(matched) {
		start = 0
	}
	end := len(matched)
	if req.SubsetDataSize > 0 && start+int(req.SubsetDataSize) < end {
		end = start + int(req.SubsetDataSize)
	}
	names := t.columnNames(req.ColumnIndices)

	// Stream in fixed-size chunks; the final chunk carries progress 1.0
	// even when the filter matched nothing.
	sent := start
	for {
		chunkEnd := minInt(sent+catalogFilterChunk, end)
		columns := make(map[string][]string, len(names))
		for _, name := range names {
			col := t.columns[name]
			vals := make([]string, 0, chunkEnd-sent)
			for _, row := range matched[sent:chunkEnd] {
				vals = append(vals, col[row])
			}
			columns[name] = vals
		}

		progress := 1.0
		if end > start {
			progress = float64(chunkEnd-start) / float64(end-start)
		}
		d.sendData(message.EventCatalogFilterResponse, message.CatalogFilterResponse{
			FileID:          req.FileID,
			Columns:         columns,
			SubsetDataSize:  int32(chunkEnd - sent),
			SubsetEndIndex:  int32(chunkEnd),
			FilterDataSize:  int32(len(matched)),
			RequestEndIndex: int32(end),
			Progress:        progress,
		})

		sent = chunkEnd
		if sent >= end {
			return nil
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
