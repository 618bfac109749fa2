package hub

import (
	"context"
	"sync"
	"time"

	"chathub-backend/internal/models"

	"go.uber.org/zap"
)

type StatusStore interface {
	UpdateUserStatus(ctx context.Context, id int64, status models.UserStatus) error
}

// presenceWriter persists online/offline status off the connection path.
// Only the latest wanted status per user is kept, so a quick
// reconnect collapses into one write. Failed writes are logged and dropped.
type presenceWriter struct {
	store   StatusStore
	sugar   *zap.SugaredLogger
	timeout time.Duration

	mutex   sync.Mutex
	pending map[int64]models.UserStatus
	wake    chan struct{}
}

func newPresenceWriter(store StatusStore, sugar *zap.SugaredLogger) *presenceWriter {
	return &presenceWriter{
		store:   store,
		sugar:   sugar,
		timeout: 5 * time.Second,
		pending: make(map[int64]models.UserStatus),
		wake:    make(chan struct{}, 1),
	}
}

func (p *presenceWriter) Set(userID int64, status models.UserStatus) {
	p.mutex.Lock()
	p.pending[userID] = status
	p.mutex.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run writes pending statuses until ctx is done. Call flush afterwards to
// persist what is left.
func (p *presenceWriter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			p.flush()
		}
	}
}

func (p *presenceWriter) flush() {
	p.mutex.Lock()
	batch := p.pending
	p.pending = make(map[int64]models.UserStatus)
	p.mutex.Unlock()

	for userID, status := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.store.UpdateUserStatus(ctx, userID, status)
		cancel()

		if err != nil {
			p.sugar.Errorw("Couldn't persist user status", "userID", userID, "status", status, "error", err)
		}
	}
}
