package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const DefaultMaxFiles = 5

type Config struct {
	Level  string
	Format string // "console" or "json"
	// Dir, when set, receives one log file per process start. At most
	// MaxFiles files are kept.
	Dir      string
	MaxFiles int
	Debug    bool
}

func New(cfg Config) (*zap.Logger, error) {
	var logConf zap.Config
	if cfg.Debug || cfg.Format == "console" {
		logConf = zap.NewDevelopmentConfig()
		logConf.Encoding = "console"
		logConf.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		logConf = zap.NewProductionConfig()
		logConf.Encoding = "json"
		logConf.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		logConf.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = l
	}
	if cfg.Debug {
		level = zapcore.DebugLevel
	}
	logConf.Level = zap.NewAtomicLevelAt(level)

	if cfg.Dir != "" {
		path, err := prepareDir(cfg.Dir, cfg.MaxFiles, time.Now())
		if err != nil {
			return nil, err
		}
		logConf.OutputPaths = append(logConf.OutputPaths, path)
	}

	return logConf.Build()
}

// prepareDir creates dir if needed, removes the oldest log files so a new
// one fits under maxFiles, and returns the path for the new file.
func prepareDir(dir string, maxFiles int, now time.Time) (string, error) {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating log directory %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading log directory %s: %w", dir, err)
	}

	type logFile struct {
		name string
		mod  time.Time
	}
	var files []logFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{name: e.Name(), mod: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })

	for len(files) >= maxFiles {
		if err := os.Remove(filepath.Join(dir, files[0].name)); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("removing old log file: %w", err)
		}
		files = files[1:]
	}

	return filepath.Join(dir, now.Format("20060102-150405")+".log"), nil
}
