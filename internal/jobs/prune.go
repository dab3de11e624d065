package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"nluhub/internal/metrics"
	"nluhub/internal/repository"
)

// LogPruner removes NLP logs older than the retention window, one batch per
// transaction.
type LogPruner struct {
	logs          repository.NLPLogRepository
	retentionDays int
	batchSize     int
	metrics       *metrics.Metrics
	now           func() time.Time
	logger        *zap.Logger
}

func NewLogPruner(logs repository.NLPLogRepository, retentionDays, batchSize int, m *metrics.Metrics, logger *zap.Logger) *LogPruner {
	return &LogPruner{
		logs:          logs,
		retentionDays: retentionDays,
		batchSize:     batchSize,
		metrics:       m,
		now:           time.Now,
		logger:        logger,
	}
}

func (p *LogPruner) Name() string { return "prune-logs" }

// Cutoff is midnight of the day retentionDays ago.
func (p *LogPruner) Cutoff() time.Time {
	now := p.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return midnight.AddDate(0, 0, -p.retentionDays)
}

func (p *LogPruner) Run(ctx context.Context) error {
	cutoff := p.Cutoff()
	var afterID int64
	var total int

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastID, deleted, err := p.logs.DeleteBatchBefore(ctx, cutoff, afterID, p.batchSize)
		if err != nil {
			return fmt.Errorf("prune nlp logs after id %d: %w", afterID, err)
		}
		total += deleted
		p.metrics.AddPrunedLogs(deleted)
		// an empty batch leaves the keyset where it was; a short one may
		// only mean another worker removed some of its rows
		if lastID <= afterID {
			break
		}
		afterID = lastID
	}

	p.logger.Info("NLP logs pruned", zap.Time("cutoff", cutoff), zap.Int("deleted", total))
	return nil
}
