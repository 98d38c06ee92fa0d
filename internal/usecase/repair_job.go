package usecase

import (
	"context"
	"encoding/json"

	"BarLake/pkg/logger"
	"BarLake/pkg/queue"
)

const RepairJobType = "bars.repair"

// RepairPayload asks for one symbol, or every symbol when Symbol is empty.
type RepairPayload struct {
	Symbol string `json:"symbol,omitempty"`
}

// RepairJob runs gap repair from the job queue.
type RepairJob struct {
	repairer *GapRepairer
	logger   *logger.Logger
}

var _ queue.Job = (*RepairJob)(nil)

func NewRepairJob(r *GapRepairer, l *logger.Logger) *RepairJob {
	return &RepairJob{repairer: r, logger: l}
}

func (j *RepairJob) Name() string { return "gap_repair" }
func (j *RepairJob) Type() string { return RepairJobType }

func (j *RepairJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[RepairPayload](payload)
	if err != nil {
		return err
	}

	if p.Symbol == "" {
		reports, err := j.repairer.RepairAll(ctx)
		var inserted int64
		for _, r := range reports {
			inserted += r.Inserted
		}
		j.logger.Info("repair run finished",
			logger.Int("symbols", len(reports)),
			logger.Int64("inserted", inserted),
		)
		return err
	}

	_, err = j.repairer.DetectAndRepairGaps(ctx, p.Symbol)
	return err
}
