// Package logging wires github.com/op/go-logging into a single
// shared backend the way server.go's initLogging/newLogger do: one
// formatted backend built once from config.Logging, handed out as a
// named *logging.Logger per subsystem.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	golog "github.com/op/go-logging"

	"nextgraph.dev/broker/config"
)

const fileMode = 0600

var logFormat = golog.MustStringFormatter(
	"%{time:15:04:05.000} %{level:.4s} %{module}: %{message}",
)

// Backend is the shared leveled backend every subsystem logger draws
// from, mirroring server.go's s.logBackend.
type Backend struct {
	leveled golog.LeveledBackend
}

// NewBackend opens the configured log sink (stdout, a file relative
// to DataDir, or discard when Disable is set) and wraps it in a
// module-leveled backend (spec ambient stack: "a shared logBackend").
func NewBackend(cfg config.Logging, dataDir string) (*Backend, error) {
	var w io.Writer
	switch {
	case cfg.Disable:
		w = io.Discard
	case cfg.File == "":
		w = os.Stdout
	default:
		p := cfg.File
		if !filepath.IsAbs(p) {
			p = filepath.Join(dataDir, p)
		}
		f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileMode)
		if err != nil {
			return nil, fmt.Errorf("logging: failed to open log file: %w", err)
		}
		w = f
	}

	b := golog.NewLogBackend(w, "", 0)
	bf := golog.NewBackendFormatter(b, logFormat)
	leveled := golog.AddModuleLevel(bf)
	leveled.SetLevel(levelFromString(cfg.Level), "")
	return &Backend{leveled: leveled}, nil
}

// Logger returns a new logger for module, backed by b.
func (b *Backend) Logger(module string) *golog.Logger {
	l := golog.MustGetLogger(module)
	l.SetBackend(b.leveled)
	return l
}

// Leveled exposes the shared backend so other packages' package-level
// loggers can rebind onto it (e.g. broker.SetLogBackend,
// netfsm.SetLogBackend), mirroring server.go's s.logBackend field
// being handed to every subsystem's newLogger call.
func (b *Backend) Leveled() golog.LeveledBackend { return b.leveled }


func levelFromString(l string) golog.Level {
	switch l {
	case "ERROR":
		return golog.ERROR
	case "WARNING":
		return golog.WARNING
	case "NOTICE":
		return golog.NOTICE
	case "INFO":
		return golog.INFO
	case "DEBUG":
		return golog.DEBUG
	default:
		panic("BUG: invalid log level (post-validation)")
	}
}
