package convert

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maruel/natural"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/ianaindex"

	"cssc/archive"
	"cssc/cache"
	"cssc/config"
	"cssc/css"
	"cssc/diag"
	"cssc/modules"
	"cssc/state"
	"cssc/transform"
)

// source is a single stylesheet found in processed location.
type source struct {
	// name is path relative to the walk root including file name, used to
	// build output names
	name string
	// origin is full location of the source for messages
	origin string
	// dir is directory relative references are resolved against, empty when
	// stylesheet came from archive
	dir  string
	load func() ([]byte, error)
}

// runner keeps everything needed to process a batch of sources.
type runner struct {
	env        *state.LocalEnv
	log        *zap.Logger
	tr         *transform.Transformer
	cache      *cache.Cache
	sel        *selector
	opts       transform.Options
	minifyOnly bool
	workers    int
	dst        string

	// serializes writes to out
	mu  sync.Mutex
	out io.Writer
}

// Run is the action of "transform" command.
func Run(ctx context.Context, cmd *cli.Command) error {
	return run(ctx, cmd, false)
}

// RunMinify is the action of "minify" command.
func RunMinify(ctx context.Context, cmd *cli.Command) error {
	return run(ctx, cmd, true)
}

func run(ctx context.Context, cmd *cli.Command, minifyOnly bool) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named(cmd.Name)

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}
	src, err = filepath.Abs(src)
	if err != nil {
		return err
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Mailformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	if err := applyFlags(cmd, minifyOnly, &env.Cfg.Transform); err != nil {
		return err
	}
	env.NoDirs, env.Overwrite = cmd.Bool("nodirs"), cmd.Bool("overwrite")
	env.Diff, env.Stdout = cmd.Bool("diff"), cmd.Bool("stdout")
	if env.Diff && env.Stdout {
		return errors.New("--diff and --stdout cannot be used together")
	}
	if env.Stdout {
		// console output below error level goes to stdout as well
		log = log.WithOptions(zap.IncreaseLevel(zap.ErrorLevel))
	}

	cs := env.Cfg.Input.ForceCharset
	if cmd.IsSet("force-charset") {
		cs = cmd.String("force-charset")
	}
	if len(cs) > 0 {
		env.Charset, err = ianaindex.IANA.Encoding(cs)
		if err != nil || env.Charset == nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cs), zap.Error(err))
			env.Charset = nil
		} else {
			n, _ := ianaindex.IANA.Name(env.Charset)
			log.Debug("Forcefully decoding stylesheets without BOM or @charset", zap.String("charset", n))
		}
	}

	opts, err := buildOptions(&env.Cfg.Transform)
	if err != nil {
		return err
	}

	sel, err := newSelector(&env.Cfg.Input)
	if err != nil {
		return err
	}

	c, err := cache.Open(env.Cfg.Cache.MemoryEntries, env.Cfg.Cache.Path, log)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, c.Close())
	}()

	workers := env.Cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	if env.Diff || env.Stdout {
		// keep output in source order
		workers = 1
	}

	r := &runner{
		env:        env,
		log:        log,
		tr:         transform.New(log),
		cache:      c,
		sel:        sel,
		opts:       opts,
		minifyOnly: minifyOnly,
		workers:    workers,
		dst:        dst,
		out:        os.Stdout,
	}

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst), zap.Int("workers", workers))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return r.process(ctx, src)
}

// applyFlags overwrites configuration with values explicitly set on command
// line. Options file goes first so individual flags could adjust it.
func applyFlags(cmd *cli.Command, minifyOnly bool, cfg *config.TransformConfig) error {
	if cmd.IsSet("options") {
		if err := applyOptionsFile(cmd.String("options"), minifyOnly, cfg); err != nil {
			return err
		}
	}
	if cmd.IsSet("minify") {
		cfg.Minify = cmd.Bool("minify")
	}
	if cmd.IsSet("source-map") {
		mode, err := config.ParseSourceMapMode(cmd.String("source-map"))
		if err != nil {
			return fmt.Errorf("bad --source-map value: %w", err)
		}
		cfg.SourceMap = mode
	}
	if cmd.IsSet("deps") {
		cfg.AnalyzeDependencies = cmd.Bool("deps")
	}
	if cmd.IsSet("check-resources") {
		cfg.CheckResources = cmd.Bool("check-resources")
	}
	if cmd.IsSet("modules") {
		cfg.CSSModules.Enable = cmd.Bool("modules")
	}
	if cmd.IsSet("pattern") {
		cfg.CSSModules.Enable = true
		cfg.CSSModules.Pattern = cmd.String("pattern")
	}
	return nil
}

// applyOptionsFile merges JSON options in the form accepted by Transformer
// into configuration. File name in options is ignored, it comes from the
// processed sources.
func applyOptionsFile(path string, minifyOnly bool, cfg *config.TransformConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read options: %w", err)
	}

	var sourceMap bool
	if minifyOnly {
		opts, err := transform.ParseMinifyOptions(data)
		if err != nil {
			return err
		}
		sourceMap = opts.SourceMap
	} else {
		opts, err := transform.ParseOptions(data)
		if err != nil {
			return err
		}
		sourceMap = opts.SourceMap
		cfg.Minify = opts.Minify
		cfg.AnalyzeDependencies = opts.AnalyzeDependencies
		cfg.CSSModules.Enable = opts.CSSModules != nil
		if opts.CSSModules != nil {
			cfg.CSSModules.Pattern = opts.CSSModules.Pattern
		}
	}

	switch {
	case !sourceMap:
		cfg.SourceMap = config.SourceMapModeNone
	case !cfg.SourceMap.Enabled():
		// keep inline if it was configured
		cfg.SourceMap = config.SourceMapModeExternal
	}
	return nil
}

// buildOptions prepares pipeline options shared by all processed files. CSS
// Modules pattern is checked here so bad configuration is reported once.
func buildOptions(cfg *config.TransformConfig) (transform.Options, error) {
	opts := transform.Options{
		SourceMap: cfg.SourceMap.Enabled(),
		Minify:    cfg.Minify,
		// resource checks work on analyzed dependencies
		AnalyzeDependencies: cfg.AnalyzeDependencies || cfg.CheckResources,
	}
	if pattern, ok := cfg.ModulesPattern(); ok {
		if _, err := modules.CompilePattern(pattern); err != nil {
			return transform.Options{}, fmt.Errorf("failed to parse the pattern for CSS Modules: %w", err)
		}
		opts.CSSModules = &transform.ModulesOptions{Pattern: pattern}
	}
	return opts, nil
}

// process determines the input type (directory, archive, or single file),
// collects stylesheets and processes them.
func (r *runner) process(ctx context.Context, src string) error {
	var (
		head, tail string
		sources    []source
	)
	for head = src; len(head) != 0; head, tail = filepath.Split(head) {
		if err := ctx.Err(); err != nil {
			return err
		}

		head = strings.TrimSuffix(head, string(filepath.Separator))

		fi, err := os.Stat(head)
		if err != nil {
			// does not exists - probably path in archive
			continue
		}

		if fi.Mode().IsDir() {
			if len(tail) != 0 {
				// directory cannot have tail - it would be simple file
				return fmt.Errorf("input source was not found (%s) => (%s)", head, strings.TrimPrefix(src, head))
			}
			if sources, err = r.collectDir(ctx, head); err != nil {
				return fmt.Errorf("unable to process directory: %w", err)
			}
			break
		}

		if !fi.Mode().IsRegular() {
			return fmt.Errorf("unexpected path mode for (%s) => (%s)", head, strings.TrimPrefix(src, head))
		}

		arc, err := isArchiveFile(head)
		if err != nil {
			// checking format - but cannot open target file
			return fmt.Errorf("unable to check archive type: %w", err)
		}
		if arc {
			// we need to look inside to see if path makes sense
			tail = strings.TrimPrefix(strings.TrimPrefix(src, head), string(filepath.Separator))
			if sources, err = r.collectArchive(ctx, head, filepath.ToSlash(tail), ""); err != nil {
				return fmt.Errorf("unable to process archive: %w", err)
			}
			if len(sources) == 0 && len(tail) > 0 {
				return fmt.Errorf("input source was not found in archive (%s) => (%s)", head, tail)
			}
			break
		}

		if len(tail) != 0 {
			return fmt.Errorf("input source was not found (%s) => (%s)", head, strings.TrimPrefix(src, head))
		}
		// single file is processed regardless of include patterns
		sources = append(sources, fileSource(head, filepath.Base(head)))
		break
	}
	if len(head) == 0 {
		return fmt.Errorf("input source was not found (%s)", src)
	}
	return r.runAll(ctx, sources)
}

func fileSource(path, name string) source {
	return source{
		name:   name,
		origin: path,
		dir:    filepath.Dir(path),
		load:   func() ([]byte, error) { return os.ReadFile(path) },
	}
}

// collectDir walks directory tree finding stylesheets. Archives found on the
// way are looked into as well, symbolic links are not followed.
func (r *runner) collectDir(ctx context.Context, dir string) ([]source, error) {
	if r.env.Cfg.Input.RespectGitignore {
		if err := r.sel.loadGitignore(dir); err != nil {
			r.log.Warn("Ignoring .gitignore", zap.String("dir", dir), zap.Error(err))
		}
	}

	var sources []source
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			r.log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if path == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		slashed := filepath.ToSlash(rel)

		if d.IsDir() {
			if r.sel.skipDir(slashed) {
				r.log.Debug("Skipping directory", zap.String("dir", path))
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		arc, err := isArchiveFile(path)
		if err != nil {
			r.log.Warn("Skipping file", zap.String("file", path), zap.Error(err))
			return nil
		}
		if arc {
			found, err := r.collectArchive(ctx, path, "", filepath.Dir(rel))
			if err != nil {
				r.log.Error("Unable to process archive", zap.String("file", path), zap.Error(err))
				return nil
			}
			sources = append(sources, found...)
			return nil
		}

		if !r.sel.selected(slashed) {
			return nil
		}
		sources = append(sources, fileSource(path, rel))
		return nil
	})
	if err == nil && len(sources) == 0 {
		r.log.Debug("Nothing to process", zap.String("dir", dir))
	}
	return sources, err
}

// collectArchive reads stylesheets located under pathIn inside archive.
// Archive entries are small, they are loaded right away so archive does not
// need to be kept open.
func (r *runner) collectArchive(ctx context.Context, path, pathIn, pathOut string) ([]source, error) {
	var sources []source
	err := archive.Walk(path, pathIn, r.sel.selected, func(arc string, f *zip.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			r.log.Error("Unable to read file in archive",
				zap.String("archive", arc), zap.String("file", f.FileHeader.Name), zap.Error(err))
			return nil
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			r.log.Error("Unable to read file in archive",
				zap.String("archive", arc), zap.String("file", f.FileHeader.Name), zap.Error(err))
			return nil
		}

		name := f.FileHeader.Name
		if r.env.Charset != nil && f.FileHeader.NonUTF8 {
			// old archives keep names in the same legacy code page as content
			if n, err := r.env.Charset.NewDecoder().String(name); err == nil {
				name = n
			}
		}
		sources = append(sources, source{
			name:   filepath.Join(pathOut, filepath.FromSlash(name)),
			origin: arc + ":" + f.FileHeader.Name,
			load:   func() ([]byte, error) { return data, nil },
		})
		return nil
	})
	if err == nil && len(sources) == 0 {
		r.log.Debug("Nothing to process", zap.String("archive", path))
	}
	return sources, err
}

// runAll processes sources in natural order of their names using limited
// number of workers. Failure of a single file does not stop others, all
// failures are combined in returned error.
func (r *runner) runAll(ctx context.Context, sources []source) error {
	if len(sources) == 0 {
		r.log.Warn("No stylesheets found")
		return nil
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return natural.Less(sources[i].name, sources[j].name)
	})

	var (
		mu     sync.Mutex
		failed error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, s := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := r.processFile(gctx, s); err != nil {
				r.log.Error("Unable to process file", zap.String("file", s.origin), zap.Error(err))
				r.keepFailed(s)
				mu.Lock()
				failed = multierr.Append(failed, fmt.Errorf("%s: %w", s.name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if n := len(multierr.Errors(failed)); n > 0 {
		r.log.Warn("Some files were not processed", zap.Int("failed", n), zap.Int("total", len(sources)))
	}
	return failed
}

// keepFailed puts source of the stylesheet which could not be processed into
// debug report.
func (r *runner) keepFailed(s source) {
	if r.env.Rpt == nil {
		return
	}
	name := "failed/" + filepath.ToSlash(s.name)
	if s.dir != "" {
		// file may change before report is closed
		if err := r.env.Rpt.StoreCopy(name, s.origin); err != nil {
			r.log.Warn("Unable to keep failed source", zap.String("file", s.origin), zap.Error(err))
		}
		return
	}
	if data, err := s.load(); err == nil {
		r.env.Rpt.StoreData(name, data)
	}
}

// processFile runs single stylesheet through the pipeline and writes
// results.
func (r *runner) processFile(ctx context.Context, s source) (rerr error) {
	log := r.log.With(zap.String("file", s.origin))

	var outputName string

	log.Debug("Processing file")
	defer func(start time.Time) {
		if p := recover(); p != nil {
			log.Error("Processing ended with panic",
				zap.Any("panic", p), zap.Duration("elapsed", time.Since(start)), zap.ByteString("stack", debug.Stack()))
			rerr = fmt.Errorf("processing panic: %v", p)
		} else if rerr == nil {
			log.Info("File processed", zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName))
		}
	}(time.Now())

	data, err := s.load()
	if err != nil {
		return fmt.Errorf("unable to read source: %w", err)
	}
	text, charset, err := decodeSource(data, r.env.Charset)
	if err != nil {
		return err
	}
	if charset != "UTF-8" {
		log.Debug("Source decoded", zap.String("charset", charset))
	}

	filename := filepath.ToSlash(s.name)
	out, err := r.pipeline(ctx, text, filename)
	if err != nil {
		var fe *diag.FatalError
		if errors.As(err, &fe) {
			logDiagnostics(log, fe.Diagnostics)
		}
		return err
	}
	logDiagnostics(log, out.Diagnostics)

	if r.env.Rpt != nil {
		r.storeTree(text, filename, log)
	}

	if r.env.Cfg.Transform.CheckResources && !r.minifyOnly {
		if s.dir == "" {
			log.Debug("Resource check is not supported for archived stylesheets")
		} else {
			for _, p := range checkResources(out.Dependencies, s.dir) {
				log.Warn("Bad resource reference", zap.String("url", p.URL), zap.String("path", p.Path), zap.String("reason", p.Reason))
			}
		}
	}

	base := buildOutputPath(s.name, r.dst, r.minifyOnly || r.opts.Minify, !r.minifyOnly && r.opts.CSSModules != nil, r.env)
	paths := newOutputPaths(base)
	outputName = paths.CSS
	return r.write(s, text, out, paths, log)
}

// pipeline returns cached result or runs transformer.
func (r *runner) pipeline(ctx context.Context, text []byte, filename string) (*transform.Output, error) {
	var (
		mode cache.Mode
		opts any
		run  func() (*transform.Output, error)
	)
	if r.minifyOnly {
		mo := transform.MinifyOptions{Filename: filename, SourceMap: r.opts.SourceMap}
		mode, opts = cache.ModeMinify, mo
		run = func() (*transform.Output, error) { return r.tr.Minify(ctx, text, mo) }
	} else {
		to := r.opts
		to.Filename = filename
		mode, opts = cache.ModeTransform, to
		run = func() (*transform.Output, error) { return r.tr.Transform(ctx, text, to) }
	}

	key, err := cache.Key(mode, text, opts)
	if err != nil {
		r.log.Warn("Unable to build cache key", zap.Error(err))
	} else if out, ok := r.cache.Get(key); ok {
		r.log.Debug("Using cached result", zap.String("file", filename), zap.String("key", key))
		return out, nil
	}

	out, err := run()
	if err != nil {
		return nil, err
	}
	if len(key) > 0 {
		r.cache.Put(key, out)
	}
	return out, nil
}

// storeTree saves parsed tree of the source into debug report.
func (r *runner) storeTree(text []byte, filename string, log *zap.Logger) {
	cfg := css.ParserConfig{CSSModules: !r.minifyOnly && r.opts.CSSModules != nil}
	sheet, _, err := css.Parse(text, filename, cfg)
	if err != nil {
		log.Debug("Unable to dump tree", zap.Error(err))
		return
	}
	r.env.Rpt.StoreData(fmt.Sprintf("ast/%s.txt", filename), []byte(css.Dump(sheet)))
}

func logDiagnostics(log *zap.Logger, list []diag.Diagnostic) {
	for _, d := range list {
		log.Warn("Stylesheet problem",
			zap.String("level", d.Level), zap.String("location", d.Location()), zap.String("message", d.Message))
	}
}
