package logger

import (
	"go.uber.org/zap"
)

type Sugared = *zap.SugaredLogger

func New(env string) Sugared {
	var z *zap.Logger
	if env == "prod" {
		z, _ = zap.NewProduction()
	} else {
		z, _ = zap.NewDevelopment()
	}
	return z.Sugar()
}

// OrNop returns log, or a no-op logger when log is nil.
func OrNop(log Sugared) Sugared {
	if log == nil {
		return zap.NewNop().Sugar()
	}
	return log
}
