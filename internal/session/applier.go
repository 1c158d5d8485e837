package session

import (
	"go.uber.org/zap"

	"github.com/gabmerlin/saas-sub001/internal/domain"
)

// LogApplier is the default sink for session transitions. Deployments
// with a richer local auth subsystem substitute their own Applier.
type LogApplier struct {
	Logger *zap.Logger
}

func (a *LogApplier) log() *zap.Logger {
	if a != nil && a.Logger != nil {
		return a.Logger
	}
	return zap.L()
}

func (a *LogApplier) Apply(rec *domain.SessionRecord) {
	a.log().Info("session applied",
		zap.String("user_id", rec.UserID),
		zap.Int64("expires_at", rec.ExpiresAt),
	)
}

func (a *LogApplier) Reset() {
	a.log().Info("session reset")
}
