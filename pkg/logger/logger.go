package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 全局日志实例
// 各包通过 logrus.WithField("component", ...) 取子 logger，
// Init 配置的是 logrus 标准实例，二者指向同一套输出
var Logger = logrus.StandardLogger()

// Config 日志配置
type Config struct {
	Level      string `yaml:"level"`      // debug / info / warn / error
	OutputFile string `yaml:"outputFile"` // 为空则只输出到控制台
	MaxSize    int    `yaml:"maxSize"`    // 单文件上限（MB）
	MaxBackups int    `yaml:"maxBackups"` // 保留的轮转文件数
	MaxAge     int    `yaml:"maxAge"`     // 保留天数
	Compress   bool   `yaml:"compress"`
	// ConsoleQuiet 为真时控制台不输出（TUI 看板模式下避免污染终端）
	ConsoleQuiet bool `yaml:"-"`
}

// DefaultConfig 默认日志配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}
}

// Init 初始化全局日志
func Init(cfg Config) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	Logger.SetLevel(level)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	var writers []io.Writer
	if !cfg.ConsoleQuiet {
		writers = append(writers, os.Stderr)
	}
	if cfg.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o755); err != nil {
			return fmt.Errorf("mkdir log dir: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}
	switch len(writers) {
	case 0:
		Logger.SetOutput(io.Discard)
	case 1:
		Logger.SetOutput(writers[0])
	default:
		Logger.SetOutput(io.MultiWriter(writers...))
	}
	return nil
}

// InitDefault 以默认配置初始化（测试和小工具用）
func InitDefault() error {
	return Init(DefaultConfig())
}

// Debug 输出 debug 日志
func Debug(args ...interface{}) { Logger.Debug(args...) }

// Debugf 输出格式化 debug 日志
func Debugf(format string, args ...interface{}) { Logger.Debugf(format, args...) }

// Info 输出 info 日志
func Info(args ...interface{}) { Logger.Info(args...) }

// Infof 输出格式化 info 日志
func Infof(format string, args ...interface{}) { Logger.Infof(format, args...) }

// Warn 输出 warn 日志
func Warn(args ...interface{}) { Logger.Warn(args...) }

// Warnf 输出格式化 warn 日志
func Warnf(format string, args ...interface{}) { Logger.Warnf(format, args...) }

// Error 输出 error 日志
func Error(args ...interface{}) { Logger.Error(args...) }

// Errorf 输出格式化 error 日志
func Errorf(format string, args ...interface{}) { Logger.Errorf(format, args...) }

// WithField 创建带字段的日志入口
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithFields 创建带多个字段的日志入口
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}
