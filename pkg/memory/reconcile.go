package memory

import (
	"context"
	"fmt"
)

// ReconcileReport summarizes an orphan-repair pass.
type ReconcileReport struct {
	OrphanVectors  int64 `json:"orphan_vectors"`  // vector rows removed (no canonical entry)
	MissingVectors int64 `json:"missing_vectors"` // entries found without a vector row
}

// Reconcile repairs index state left by a crash between the statements of an
// interrupted write: vector rows whose canonical entry is gone are removed,
// and entries missing their vector row are counted and reported. Missing
// vectors are not re-embedded here; a delete and re-add restores them.
// Intended to run at startup and periodically.
func (s *Store) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	if s.dim == 0 {
		return report, nil
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM entries_vec
		WHERE entry_id NOT IN (SELECT id FROM entries)
	`)
	if err != nil {
		return report, fmt.Errorf("remove orphan vectors: %w", err)
	}
	report.OrphanVectors, _ = res.RowsAffected()

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entries
		WHERE id NOT IN (SELECT entry_id FROM entries_vec)
	`).Scan(&report.MissingVectors)
	if err != nil {
		return report, fmt.Errorf("count missing vectors: %w", err)
	}

	if report.OrphanVectors > 0 || report.MissingVectors > 0 {
		s.logger.Warn().
			Int64("orphan_vectors", report.OrphanVectors).
			Int64("missing_vectors", report.MissingVectors).
			Msg("Index reconciliation repaired orphans")
	}
	return report, nil
}
