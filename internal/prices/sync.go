// Package prices syncs the supplier's FTP price list into the catalog.
package prices

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/store"
)

// Summary reports one sync run.
type Summary struct {
	Upserted int
	BadRows  int
}

// Syncer downloads and applies the price list.
type Syncer struct {
	store store.Store
	cfg   FTPConfig
	log   *zap.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(st store.Store, cfg FTPConfig) *Syncer {
	return &Syncer{store: st, cfg: cfg, log: zap.L()}
}

// Run fetches the price list and upserts every valid row. Unknown codes
// create skeleton products that the enrichment stages fill in later.
func (s *Syncer) Run(ctx context.Context) (Summary, error) {
	path, err := fetchToTemp(ctx, s.cfg)
	if err != nil {
		return Summary{}, err
	}
	defer os.Remove(path) //nolint:errcheck

	return s.Apply(ctx, path)
}

// Apply parses a local workbook and upserts its rows. Split from Run so a
// manually downloaded file can be loaded too.
func (s *Syncer) Apply(ctx context.Context, path string) (Summary, error) {
	rows, bad, err := ParseFile(path)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{BadRows: bad}
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := s.store.UpsertPrice(ctx, r.Code, r.Price, r.Category); err != nil {
			return summary, eris.Wrapf(err, "prices: upsert %s", r.Code)
		}
		summary.Upserted++
	}

	s.log.Info("price list applied",
		zap.Int("upserted", summary.Upserted),
		zap.Int("bad_rows", summary.BadRows))
	return summary, nil
}
