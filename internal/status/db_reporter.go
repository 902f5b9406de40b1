package status

import (
	"context"
	"strconv"
	"time"

	"go_flare/internal/dnstypes"
	"go_flare/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const dbReportTimeout = 5 * time.Second

// DBReporter stores outcomes on the originating subdomain row
type DBReporter struct {
	db     *gorm.DB
	logger *logrus.Entry
}

// NewDBReporter creates a database reporter
func NewDBReporter(db *gorm.DB, logger *logrus.Entry) *DBReporter {
	return &DBReporter{
		db:     db,
		logger: logger.WithField("component", "status-db"),
	}
}

// Report implements dispatcher.Reporter
func (r *DBReporter) Report(outcome dnstypes.DispatchOutcome) {
	id, err := strconv.Atoi(outcome.CorrelationID)
	if err != nil {
		r.logger.Warnf("Skipping outcome with non-numeric correlation id %q", outcome.CorrelationID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbReportTimeout)
	defer cancel()

	result := r.db.WithContext(ctx).
		Model(&model.Subdomain{}).
		Where("id = ?", id).
		Updates(outcomeUpdates(outcome))
	if result.Error != nil {
		r.logger.Errorf("Failed to store outcome for subdomain %d: %v", id, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		r.logger.Warnf("Subdomain %d not found, outcome dropped", id)
	}
}

// outcomeUpdates builds the column updates for an outcome
func outcomeUpdates(outcome dnstypes.DispatchOutcome) map[string]interface{} {
	completedAt := outcome.CompletedAt
	updates := map[string]interface{}{
		"last_sync_detail":   truncate(outcome.Detail),
		"last_sync_attempts": outcome.Attempts,
		"last_synced_at":     &completedAt,
	}

	if !outcome.OK() {
		errMsg := truncate(outcome.Detail)
		updates["last_sync_status"] = model.SyncStatusError
		updates["last_sync_error"] = &errMsg
		return updates
	}

	updates["last_sync_status"] = model.SyncStatusOK
	updates["last_sync_error"] = nil
	switch outcome.RecordType {
	case dnstypes.RecordTypeA:
		updates["ipv4"] = outcome.Content
	case dnstypes.RecordTypeAAAA:
		updates["ipv6"] = outcome.Content
	}
	return updates
}
