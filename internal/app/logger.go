package app

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "tutorlink"

// NewLogger собирает zap логгер: JSON в production, цветной консольный вывод иначе
func NewLogger(env string) *zap.Logger {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "ts"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.OutputPaths = []string{"stdout"}
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
		"env":     env,
	}

	logger, err := config.Build()
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}

	return logger
}
