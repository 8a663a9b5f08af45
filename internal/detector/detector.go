// Package detector partitions polled handle records into changed and unchanged
// by comparing stored ratings with freshly fetched snapshots.
package detector

import (
	"strings"

	"rating-notifier/internal/common/logger"
	"rating-notifier/internal/models"
)

// Result is the outcome of Detect. Both lists carry the refreshed snapshot
// whenever one was found.
type Result struct {
	Changed   []models.HandleRecord
	Unchanged []models.HandleRecord
}

// Detector compares records against snapshots. It holds no state between calls.
type Detector struct {
	logger logger.Logger
}

func New(log logger.Logger) *Detector {
	return &Detector{logger: log.WithFields(map[string]interface{}{"component": "detector"})}
}

// Detect classifies each record. A record whose snapshot is missing is
// unchanged and keeps its stored data. A record with no stored data is
// always changed when a snapshot exists.
func (d *Detector) Detect(records []models.HandleRecord, snapshots []models.RatingSnapshot) Result {
	index := make(map[string]models.RatingSnapshot, len(snapshots))
	folded := make(map[string]models.RatingSnapshot, len(snapshots))
	for _, s := range snapshots {
		index[s.Handle] = s
		folded[strings.ToLower(s.Handle)] = s
	}

	var res Result
	var missing []string
	for _, record := range records {
		snapshot, ok := index[record.Handle]
		if !ok {
			// The rating source canonicalizes handle case.
			snapshot, ok = folded[strings.ToLower(record.Handle)]
		}
		if !ok {
			missing = append(missing, record.Handle)
			res.Unchanged = append(res.Unchanged, record)
			continue
		}

		changed := record.Data == nil || record.Data.Rating != snapshot.Rating

		fresh := snapshot
		record.Data = &fresh
		if changed {
			res.Changed = append(res.Changed, record)
		} else {
			res.Unchanged = append(res.Unchanged, record)
		}
	}

	if len(missing) > 0 {
		d.logger.Warn("Rating source omitted handles from a successful response", map[string]interface{}{
			"missingHandles": missing,
			"requested":      len(records),
			"returned":       len(snapshots),
		})
	}
	return res
}
