package importer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/safar/kasir-pos/internal/config"
	"github.com/safar/kasir-pos/internal/store"
)

const CancelledMessage = "import cancelled by user"

type Inserter interface {
	InsertProducts(ctx context.Context, ownerID uuid.UUID, batch []store.ProductInput, retries int) error
}

type Result struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Cancelled bool     `json:"cancelled"`
	Errors    []string `json:"errors"`
}

type Importer struct {
	inserter  Inserter
	batchSize int
	maxErrors int
	retries   int
	logger    zerolog.Logger
}

func New(inserter Inserter, cfg config.ImportConfig, logger zerolog.Logger) *Importer {
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 10
	}
	maxErrors := cfg.MaxErrors
	if maxErrors < 1 {
		maxErrors = 10
	}
	return &Importer{
		inserter:  inserter,
		batchSize: batchSize,
		maxErrors: maxErrors,
		retries:   cfg.BatchRetries,
		logger:    logger.With().Str("component", "importer").Logger(),
	}
}

// Commit inserts the valid rows of classified in sequential batches. A failed
// batch is recorded and the next one still runs. cancel is checked before
// every batch; once set, no further batch starts and what was committed stays.
func (im *Importer) Commit(ctx context.Context, ownerID uuid.UUID, classified []Classified, cancel *atomic.Bool) Result {
	var valid []store.ProductInput
	for _, c := range classified {
		if c.Status == StatusValid {
			valid = append(valid, c.Product)
		}
	}

	res := Result{Skipped: len(classified) - len(valid), Errors: []string{}}
	log := im.logger.With().Str("owner_id", ownerID.String()).Logger()

	for start, batchNo := 0, 1; start < len(valid); start, batchNo = start+im.batchSize, batchNo+1 {
		if cancel != nil && cancel.Load() {
			res.Cancelled = true
			res.Errors = append(res.Errors, CancelledMessage)
			log.Info().Int("succeeded", res.Succeeded).Msg("import cancelled")
			return res
		}
		if err := ctx.Err(); err != nil {
			res.Cancelled = true
			res.Errors = append(res.Errors, fmt.Sprintf("import aborted: %v", err))
			return res
		}

		end := min(start+im.batchSize, len(valid))
		batch := valid[start:end]

		if err := im.inserter.InsertProducts(ctx, ownerID, batch, im.retries); err != nil {
			res.Failed += len(batch)
			im.addError(&res, fmt.Sprintf("Batch %d: %v", batchNo, err))
			log.Warn().Err(err).Int("batch", batchNo).Msg("import batch failed")
			continue
		}
		res.Succeeded += len(batch)
	}

	log.Info().Int("succeeded", res.Succeeded).Int("failed", res.Failed).Int("skipped", res.Skipped).Msg("import finished")
	return res
}

func (im *Importer) addError(res *Result, msg string) {
	if len(res.Errors) < im.maxErrors {
		res.Errors = append(res.Errors, msg)
	}
}
