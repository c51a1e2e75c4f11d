package authflow

import (
	"context"
	"sort"
)

// ScrubLegacyStorage removes every legacy sensitive key from persisted
// storage and leaves the safe allow-list untouched. Keys outside both lists
// are left in place but reported for diagnostics. The scrub is idempotent
// and never fails: storage access errors produce an empty report so startup
// proceeds.
func ScrubLegacyStorage(ctx context.Context, storage Storage) CleanupReport {
	var report CleanupReport
	if storage == nil {
		return report
	}

	keys, err := storage.Keys(ctx)
	if err != nil {
		return report
	}

	safe := make(map[string]bool, len(safeKeys))
	for _, k := range safeKeys {
		safe[k] = true
	}
	sensitive := make(map[string]bool, len(sensitiveKeys))
	for _, k := range sensitiveKeys {
		sensitive[k] = true
	}

	for _, key := range keys {
		switch {
		case sensitive[key]:
			if err := storage.Delete(ctx, key); err != nil {
				continue
			}
			report.Removed = append(report.Removed, key)
		case safe[key]:
			// allow-listed, untouched
		default:
			report.Unknown = append(report.Unknown, key)
		}
	}

	sort.Strings(report.Removed)
	sort.Strings(report.Unknown)
	return report
}
