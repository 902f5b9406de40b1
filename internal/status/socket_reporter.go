package status

import (
	"go_flare/internal/dnstypes"
)

// OutcomeEvent is the Socket.IO event name for outcomes
const OutcomeEvent = "flares:outcome"

// Broadcaster is the part of the Socket.IO server the reporter needs
type Broadcaster interface {
	BroadcastToNamespace(namespace string, event string, args ...interface{}) bool
}

// SocketReporter pushes outcomes to connected dashboard clients
type SocketReporter struct {
	server    Broadcaster
	namespace string
}

// NewSocketReporter creates a Socket.IO reporter
func NewSocketReporter(server Broadcaster) *SocketReporter {
	return &SocketReporter{server: server, namespace: "/"}
}

// Report implements dispatcher.Reporter
func (r *SocketReporter) Report(outcome dnstypes.DispatchOutcome) {
	if r.server == nil {
		return
	}
	r.server.BroadcastToNamespace(r.namespace, OutcomeEvent, outcome)
}
