package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mcollab/internal/coordinator"
)

type StatsSource interface {
	Stats() coordinator.Stats
}

// HubStatsJob logs how many documents are resident and how many sessions are
// attached to them.
type HubStatsJob struct {
	source StatsSource
	last   coordinator.Stats
}

func NewHubStatsJob(source StatsSource) *HubStatsJob {
	return &HubStatsJob{source: source}
}

func (j *HubStatsJob) Name() string {
	return "hub_stats"
}

func (j *HubStatsJob) Run(ctx context.Context) error {
	if j.source == nil {
		return nil
	}
	st := j.source.Stats()
	logutil.GetLogger(ctx).Info("hub stats",
		zap.Int("documents", st.Documents),
		zap.Int("sessions", st.Sessions),
		zap.Int("documents_delta", st.Documents-j.last.Documents),
		zap.Int("sessions_delta", st.Sessions-j.last.Sessions),
	)
	j.last = st
	return nil
}
