package testutil

import (
	"context"
	"sync"

	"github.com/dwsmith1983/contractsync/pkg/types"
)

// RecordingNotifier records notifications and optionally fails.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []types.Notification
	Err  error
}

func (n *RecordingNotifier) Notify(_ context.Context, note types.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return n.Err
}

// Notifications returns the notifications received so far.
func (n *RecordingNotifier) Notifications() []types.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]types.Notification(nil), n.sent...)
}
