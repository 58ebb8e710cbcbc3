package mail

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes reset mails to the log instead of SMTP. Used when no
// SMTP host is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates the fallback sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendPasswordReset logs the reset instead of delivering it. The one-time
// password itself is never logged.
func (s *LogSender) SendPasswordReset(_ context.Context, to, firstName, lastName, username, _ string) error {
	s.logger.Info("password reset mail suppressed, no smtp host configured",
		zap.String("to", to),
		zap.String("username", username),
		zap.String("name", firstName+" "+lastName),
	)
	return nil
}
