package meter

import (
	"sync"

	"songbird-go/types"
)

// Cell is a protected slot for the latest reading, written by the audio
// domain and read wholesale by the UI domain. A plain mutex keeps the
// struct copy safe on targets without atomic float access.
type Cell struct {
	mu sync.Mutex
	v  types.LevelValue
}

func (c *Cell) Store(v types.LevelValue) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *Cell) Load() types.LevelValue {
	c.mu.Lock()
	v := c.v
	c.mu.Unlock()
	return v
}
