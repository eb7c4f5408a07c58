package broker

import (
	"fmt"
	"log/slog"

	"github.com/go-stomp/stomp/v3"
)

// stompLogger routes go-stomp server logs through slog.
type stompLogger struct {
	logger *slog.Logger
}

var _ stomp.Logger = stompLogger{}

func (l stompLogger) Debugf(format string, value ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, value...))
}

func (l stompLogger) Infof(format string, value ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, value...))
}

func (l stompLogger) Warningf(format string, value ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, value...))
}

func (l stompLogger) Errorf(format string, value ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, value...))
}

func (l stompLogger) Debug(message string)   { l.logger.Debug(message) }
func (l stompLogger) Info(message string)    { l.logger.Info(message) }
func (l stompLogger) Warning(message string) { l.logger.Warn(message) }
func (l stompLogger) Error(message string)   { l.logger.Error(message) }
