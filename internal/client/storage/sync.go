package storage

import (
	"github.com/atinyakov/cortexvault/internal/models"
)

// MergeStats summarizes a Merge.
type MergeStats struct {
	Added    int
	Updated  int
	Skipped  int
	Insights int
}

// Merge imports restored entries. An incoming entry replaces a local one
// only when it is strictly newer, so local edits and tombstones made after
// the backup survive. Insights are merged by id.
func (ls *LocalStorage) Merge(entries []models.Entry, insights []models.Insight) MergeStats {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	var stats MergeStats
	for _, in := range entries {
		found := false
		for i := range ls.Entries {
			if ls.Entries[i].ID != in.ID {
				continue
			}
			if in.UpdatedAt.After(ls.Entries[i].UpdatedAt) {
				ls.Entries[i] = in
				stats.Updated++
			} else {
				stats.Skipped++
			}
			found = true
			break
		}
		if !found {
			ls.Entries = append(ls.Entries, in)
			stats.Added++
		}
	}

	known := make(map[string]bool, len(ls.Insights))
	for _, in := range ls.Insights {
		known[in.ID] = true
	}
	for _, in := range insights {
		if known[in.ID] {
			continue
		}
		ls.Insights = append(ls.Insights, in)
		known[in.ID] = true
		stats.Insights++
	}

	return stats
}
