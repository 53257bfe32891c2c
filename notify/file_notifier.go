package notify

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileNotifier appends deliveries as JSON lines to a file. Deployments
// without a delivery integration point an external forwarder at the file.
type FileNotifier struct {
	fileName string
	logger   *zap.Logger
}

func NewFileNotifier(fileName string) (*FileNotifier, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.StacktraceKey = ""
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(fileEncoder, zapcore.AddSync(logFile), zapcore.InfoLevel)
	return &FileNotifier{
		fileName: fileName,
		logger:   zap.New(core),
	}, nil
}

func (n *FileNotifier) Send(recipientId string, title string, message string, channels []string) {
	n.logger.Info("notification",
		zap.String("recipient", recipientId),
		zap.String("title", title),
		zap.String("message", message),
		zap.Strings("channels", channels))
}

func (n *FileNotifier) Close() error {
	return n.logger.Sync()
}
