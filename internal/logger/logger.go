package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel string `env:"CURLEW_LOG_LEVEL" envDefault:"info"`
	DevMode  bool   `env:"CURLEW_DEV_MODE" envDefault:"false"`
}

// Logger is the application logging contract passed into every service.
type Logger interface {
	InitLogger()
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(template string, args ...interface{})
}

var loggerLevelMap = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
	"fatal": zapcore.FatalLevel,
}

type appLogger struct {
	cfg   *Config
	sugar *zap.SugaredLogger
}

func NewAppLogger(cfg *Config) *appLogger {
	return &appLogger{cfg: cfg}
}

func (l *appLogger) getLoggerLevel() zapcore.Level {
	level, exists := loggerLevelMap[l.cfg.LogLevel]
	if !exists {
		return zapcore.InfoLevel
	}
	return level
}

func (l *appLogger) InitLogger() {
	logWriter := zapcore.Lock(os.Stderr)

	var encoderCfg zapcore.EncoderConfig
	if l.cfg.DevMode {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderCfg = zap.NewProductionEncoderConfig()
	}
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderCfg)

	core := zapcore.NewCore(encoder, logWriter, zap.NewAtomicLevelAt(l.getLoggerLevel()))
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	l.sugar = logger.Sugar()
}

func (l *appLogger) Debug(args ...interface{})                   { l.sugar.Debug(args...) }
func (l *appLogger) Debugf(template string, args ...interface{}) { l.sugar.Debugf(template, args...) }
func (l *appLogger) Info(args ...interface{})                    { l.sugar.Info(args...) }
func (l *appLogger) Infof(template string, args ...interface{})  { l.sugar.Infof(template, args...) }
func (l *appLogger) Warn(args ...interface{})                    { l.sugar.Warn(args...) }
func (l *appLogger) Warnf(template string, args ...interface{})  { l.sugar.Warnf(template, args...) }
func (l *appLogger) Error(args ...interface{})                   { l.sugar.Error(args...) }
func (l *appLogger) Errorf(template string, args ...interface{}) { l.sugar.Errorf(template, args...) }
func (l *appLogger) Fatal(args ...interface{})                   { l.sugar.Fatal(args...) }
func (l *appLogger) Fatalf(template string, args ...interface{}) { l.sugar.Fatalf(template, args...) }
