// Package status delivers dispatch outcomes to storage and live observers.
package status

import (
	"go_flare/internal/dispatcher"
	"go_flare/internal/dnstypes"

	"github.com/sirupsen/logrus"
)

// Multi fans one outcome out to several reporters in order
type Multi []dispatcher.Reporter

// Report implements dispatcher.Reporter
func (m Multi) Report(outcome dnstypes.DispatchOutcome) {
	for _, r := range m {
		if r != nil {
			r.Report(outcome)
		}
	}
}

// LogReporter writes every outcome to the log
type LogReporter struct {
	logger *logrus.Entry
}

// NewLogReporter creates a log reporter
func NewLogReporter(logger *logrus.Entry) *LogReporter {
	return &LogReporter{logger: logger.WithField("component", "status-log")}
}

// Report implements dispatcher.Reporter
func (r *LogReporter) Report(outcome dnstypes.DispatchOutcome) {
	entry := r.logger.WithFields(logrus.Fields{
		"request_id":     outcome.RequestID,
		"correlation_id": outcome.CorrelationID,
		"target":         outcome.TargetName,
		"terminal":       outcome.Terminal,
		"attempts":       outcome.Attempts,
	})
	if outcome.OK() {
		entry.Info(outcome.Detail)
		return
	}
	entry.Warn(outcome.Detail)
}

// truncate cuts s to the 255 character column limit
func truncate(s string) string {
	if len(s) > 255 {
		return s[:252] + "..."
	}
	return s
}
