package vector

import (
	"fmt"

	"github.com/hubenschmidt/pgvreduce/core"
)

// Width is one of the reduced embedding sizes stored next to the full vector.
type Width int

const (
	Width256  Width = 256
	Width512  Width = 512
	Width1024 Width = 1024
)

// Widths lists every reduced width in ascending order.
var Widths = []Width{Width256, Width512, Width1024}

// ParseWidth accepts only the widths that have a stored column.
func ParseWidth(n int) (Width, error) {
	w := Width(n)
	if _, ok := widthQueries[w]; !ok {
		return 0, fmt.Errorf("%w: %d", core.ErrUnsupportedWidth, n)
	}
	return w, nil
}

// Column returns the items column holding vectors reduced to w.
func (w Width) Column() string {
	return widthQueries[w].column
}

func (w Width) String() string {
	return fmt.Sprintf("%d", int(w))
}

// Each width maps to fixed statements so no SQL is assembled from input.
type widthSQL struct {
	column  string
	nearest string
	verify  string
}

var widthQueries = map[Width]widthSQL{
	Width256: {
		column: "norm_256",
		nearest: `SELECT id, norm_256 <-> vector_norm_reduce($1::vector, 256), content
			FROM items ORDER BY norm_256 <-> vector_norm_reduce($1::vector, 256) LIMIT $2`,
		verify: `SELECT count(*), count(*) FILTER (WHERE embedding IS NULL OR norm_256 IS NULL
			OR norm_256 <-> vector_norm_reduce(embedding, 256) > $1) FROM items`,
	},
	Width512: {
		column: "norm_512",
		nearest: `SELECT id, norm_512 <-> vector_norm_reduce($1::vector, 512), content
			FROM items ORDER BY norm_512 <-> vector_norm_reduce($1::vector, 512) LIMIT $2`,
		verify: `SELECT count(*), count(*) FILTER (WHERE embedding IS NULL OR norm_512 IS NULL
			OR norm_512 <-> vector_norm_reduce(embedding, 512) > $1) FROM items`,
	},
	Width1024: {
		column: "norm_1024",
		nearest: `SELECT id, norm_1024 <-> vector_norm_reduce($1::vector, 1024), content
			FROM items ORDER BY norm_1024 <-> vector_norm_reduce($1::vector, 1024) LIMIT $2`,
		verify: `SELECT count(*), count(*) FILTER (WHERE embedding IS NULL OR norm_1024 IS NULL
			OR norm_1024 <-> vector_norm_reduce(embedding, 1024) > $1) FROM items`,
	},
}
