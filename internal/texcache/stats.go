package texcache

import "fmt"

// Stats is a snapshot of cache occupancy.
type Stats struct {
	// Textures is the number of live IDs.
	Textures int
	// Orphans is the number of backings awaiting release.
	Orphans int
	// InFlightFrames is the number of ended frames that sampled textures and
	// have not completed.
	InFlightFrames int
	// Replacements counts copy-on-write updates.
	Replacements uint64
	// Released counts backings destroyed through Destroy or completion.
	Released uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("TextureCache[%d textures, %d orphans, %d frames in flight, %d replaced, %d released]",
		s.Textures, s.Orphans, s.InFlightFrames, s.Replacements, s.Released)
}

// Stats returns current occupancy.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Textures:       len(c.entries),
		Orphans:        len(c.orphans),
		InFlightFrames: len(c.inFlight),
		Replacements:   c.replacements,
		Released:       c.released,
	}
}
