package geo

import (
	"bufio"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrOutsideGrid is returned when a sample point falls outside the raster.
var ErrOutsideGrid = eris.New("geo: point outside raster extent")

// ErrNoData is returned when the sampled cell holds the no-data value.
var ErrNoData = eris.New("geo: raster cell has no data")

// maxGridCells bounds ncols*nrows so a corrupt header cannot trigger a huge
// allocation. Larger rasters belong in the postgis population backend.
const maxGridCells = 1 << 28

// Grid is a single-band raster in ESRI ASCII grid layout, held in memory.
// Row 0 is the northernmost row.
type Grid struct {
	Cols      int
	Rows      int
	XLL       float64 // west edge of the grid
	YLL       float64 // south edge of the grid
	CellSize  float64
	NoData    float64
	HasNoData bool
	cells     []float32
}

// LoadGrid reads an ESRI ASCII grid (.asc) file.
func LoadGrid(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open grid %s", path)
	}
	defer f.Close() //nolint:errcheck

	g, err := ParseGrid(f)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: parse grid %s", path)
	}
	return g, nil
}

// ParseGrid parses an ESRI ASCII grid. Both *corner and *center origins are
// accepted; a centre origin is shifted by half a cell.
func ParseGrid(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024)
	sc.Split(bufio.ScanWords)

	g := &Grid{}
	var xCenter, yCenter bool
	var pending string

	// Header: key/value pairs until the first numeric token.
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			pending = key
			break
		}
		if !sc.Scan() {
			return nil, eris.Errorf("geo: grid header %q has no value", key)
		}
		val, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: grid header %q", key)
		}
		switch key {
		case "ncols", "nrows":
			if val != math.Trunc(val) || val <= 0 || val > maxGridCells {
				return nil, eris.Errorf("geo: grid header %s=%v out of range", key, val)
			}
			if key == "ncols" {
				g.Cols = int(val)
			} else {
				g.Rows = int(val)
			}
		case "xllcorner":
			g.XLL = val
		case "xllcenter":
			g.XLL, xCenter = val, true
		case "yllcorner":
			g.YLL = val
		case "yllcenter":
			g.YLL, yCenter = val, true
		case "cellsize":
			g.CellSize = val
		case "nodata_value":
			g.NoData, g.HasNoData = val, true
		default:
			return nil, eris.Errorf("geo: unknown grid header %q", key)
		}
	}

	if g.Cols <= 0 || g.Rows <= 0 || g.CellSize <= 0 {
		return nil, eris.Errorf("geo: invalid grid header ncols=%d nrows=%d cellsize=%v", g.Cols, g.Rows, g.CellSize)
	}
	if xCenter {
		g.XLL -= g.CellSize / 2
	}
	if yCenter {
		g.YLL -= g.CellSize / 2
	}

	if g.Cols > maxGridCells/g.Rows {
		return nil, eris.Errorf("geo: grid of %d x %d cells exceeds the %d cell limit", g.Cols, g.Rows, maxGridCells)
	}
	total := g.Cols * g.Rows
	g.cells = make([]float32, 0, total)
	appendCell := func(tok string) error {
		v, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			return eris.Wrapf(err, "geo: grid cell %d", len(g.cells))
		}
		g.cells = append(g.cells, float32(v))
		return nil
	}

	if pending != "" {
		if err := appendCell(pending); err != nil {
			return nil, err
		}
	}
	for len(g.cells) < total && sc.Scan() {
		if err := appendCell(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "geo: read grid")
	}
	if len(g.cells) != total {
		return nil, eris.Errorf("geo: grid has %d cells, header declares %d", len(g.cells), total)
	}
	return g, nil
}

// Sample returns the value of the cell containing (lon, lat).
func (g *Grid) Sample(lon, lat float64) (float64, error) {
	col := int(math.Floor((lon - g.XLL) / g.CellSize))
	rowFromBottom := int(math.Floor((lat - g.YLL) / g.CellSize))
	if col < 0 || col >= g.Cols || rowFromBottom < 0 || rowFromBottom >= g.Rows {
		return 0, ErrOutsideGrid
	}
	row := g.Rows - 1 - rowFromBottom

	v := float64(g.cells[row*g.Cols+col])
	if math.IsNaN(v) || (g.HasNoData && v == float64(float32(g.NoData))) {
		return 0, ErrNoData
	}
	return v, nil
}
