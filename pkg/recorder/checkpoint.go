package recorder

import (
	"bytes"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/willibrandon/ChronoLoop/pkg/arena"
)

// Checkpoint is everything needed to resume simulation at a frame boundary:
// the full arena region, the allocator cursor, the host random source and
// the encoded module state.
type Checkpoint struct {
	Frame     int
	Snapshot  []byte
	Cursor    arena.Cursor
	RNG       []byte
	State     []byte
	Timestamp time.Time
}

// Equal reports whether two checkpoints describe the same simulation state.
// Frame and Timestamp are not compared.
func (c *Checkpoint) Equal(o *Checkpoint) bool {
	return c.Cursor == o.Cursor &&
		bytes.Equal(c.Snapshot, o.Snapshot) &&
		bytes.Equal(c.RNG, o.RNG) &&
		bytes.Equal(c.State, o.State)
}

// String returns a human-readable representation of the checkpoint
func (c *Checkpoint) String() string {
	return fmt.Sprintf("Checkpoint{Frame: %d, Arena: %s used of %s, State: %s}",
		c.Frame,
		humanize.IBytes(c.Cursor.Next),
		humanize.IBytes(uint64(len(c.Snapshot))),
		humanize.IBytes(uint64(len(c.State))))
}
