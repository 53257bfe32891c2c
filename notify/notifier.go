package notify

import (
	"github.com/flowops/cadenza/logger"
	"go.uber.org/zap"
)

// Notifier is the outbound delivery collaborator. Delivery is best effort:
// implementations log failures instead of returning them.
type Notifier interface {
	Send(recipientId string, title string, message string, channels []string)
}

// LogNotifier records deliveries in the log stream. It stands in for the
// real delivery service in development and tests.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(recipientId string, title string, message string, channels []string) {
	logger.Info("notification sent",
		zap.String("recipient", recipientId),
		zap.String("title", title),
		zap.String("message", message),
		zap.Strings("channels", channels))
}
