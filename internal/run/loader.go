// internal/run/loader.go
package run

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/signalnine/rpltrace/internal/protocol"
	"github.com/signalnine/rpltrace/internal/trace"
)

// Cache stores parsed results keyed by run directory. A result is only
// returned for the parse options key it was saved with.
type Cache interface {
	LoadRun(dir, options string) (*protocol.Result, bool, error)
	SaveRun(dir, options string, res *protocol.Result) error
}

// Run is a parsed run directory
type Run struct {
	Meta   *Meta
	Result *protocol.Result
	Cached bool // served from the cache
}

// Loader parses run directories, consulting the cache first unless Force is set
type Loader struct {
	Options trace.Options
	Cache   Cache // optional
	Force   bool
	Workers int
	Log     logrus.FieldLogger
}

// Load parses dirs concurrently. Each directory gets its own pipeline.
// The first failure cancels the remaining work.
func (l *Loader) Load(ctx context.Context, dirs []string) ([]*Run, error) {
	runs := make([]*Run, len(dirs))

	g, ctx := errgroup.WithContext(ctx)
	if l.Workers > 0 {
		g.SetLimit(l.Workers)
	}

	for i, dir := range dirs {
		i, dir := i, dir
		g.Go(func() error {
			r, err := l.loadOne(ctx, dir)
			if err != nil {
				return fmt.Errorf("run %s: %w", dir, err)
			}
			runs[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (l *Loader) logger() logrus.FieldLogger {
	if l.Log == nil {
		return logrus.StandardLogger()
	}
	return l.Log
}

func (l *Loader) loadOne(ctx context.Context, dir string) (*Run, error) {
	meta, err := ReadMeta(dir)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	log := l.logger().WithField("job", meta.JobID)

	if l.Cache != nil && !l.Force {
		res, ok, err := l.Cache.LoadRun(meta.Dir, l.Options.Key())
		if err != nil {
			return nil, fmt.Errorf("load cache: %w", err)
		}
		if ok {
			log.Info("Loaded parsed run from cache")
			return &Run{Meta: meta, Result: res, Cached: true}, nil
		}
	}

	opts := l.Options
	opts.Logger = log
	log.WithField("file", LogPath(meta.Dir)).Info("Processing log")
	res, err := trace.ParseFile(ctx, LogPath(meta.Dir), opts)
	if err != nil {
		return nil, err
	}

	if l.Cache != nil {
		if err := l.Cache.SaveRun(meta.Dir, l.Options.Key(), res); err != nil {
			return nil, fmt.Errorf("save cache: %w", err)
		}
		log.Debug("Saved parsed run to cache")
	}

	return &Run{Meta: meta, Result: res}, nil
}
