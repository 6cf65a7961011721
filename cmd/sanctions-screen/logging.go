package main

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aluiziolira/sanctions-screen/config"
)

// setupLogging installs the default logger and returns a func releasing
// any log file.
func setupLogging(stderr io.Writer, cfg *config.Config) func() {
	logger, level, closer := newLogger(stderr, cfg.Verbose, cfg.LogFile)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())
	return func() {
		if closer != nil {
			closer.Close()
		}
	}
}

func newLogger(w io.Writer, verbose bool, logFile string) (*slog.Logger, *slog.LevelVar, io.Closer) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	if logFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		return slog.New(slog.NewJSONHandler(rotating, opts)), level, rotating
	}

	var handler slog.Handler
	if isTerminal(w) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler), level, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
