package cache

// ChangeKind identifies what kind of mutation a Change describes.
type ChangeKind int

// Cache mutation kinds
const (
	Saved ChangeKind = iota + 1
	Cleared
	Swept
	FavoriteChanged
)

func (k ChangeKind) String() string {
	switch k {
	case Saved:
		return "saved"
	case Cleared:
		return "cleared"
	case Swept:
		return "swept"
	case FavoriteChanged:
		return "favorite"
	default:
		return "unknown"
	}
}

// Change is an invalidation signal sent after a committed mutation.
// Query is empty for sweeps, which can touch any query.
type Change struct {
	Kind  ChangeKind
	Query string
	ID    string
}

// Subscribe returns a channel receiving every Change until cancel is called.
// Slow subscribers miss changes rather than blocking writers, so consumers
// should treat a Change as a hint to re-read.
func (c *ResultCache) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (c *ResultCache) publish(change Change) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- change:
		default:
		}
	}
}
