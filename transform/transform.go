// Package transform runs a stylesheet through the processing pipeline:
// parse, analyze dependencies, scope CSS Modules names, down-level, minify
// and emit code with optional source map.
package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"cssc/analyze"
	"cssc/css"
	"cssc/diag"
	"cssc/modules"
)

// ErrEmit is wrapped by EmitError.
var ErrEmit = errors.New("failed to emit")

// EmitError reports failure of printer or source map encoder after the tree
// was processed. Invocation produces no output in this case.
type EmitError struct {
	Stage string
	Err   error
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrEmit, e.Stage, e.Err)
}

func (e *EmitError) Unwrap() []error {
	return []error{ErrEmit, e.Err}
}

// Transformer runs pipeline invocations. It holds no per invocation state
// and may be used from many goroutines at once.
type Transformer struct {
	log *zap.Logger
	// Features selects compatibility rewrites applied by the down-level
	// phase.
	Features css.Features
}

// New creates Transformer. nil logger disables logging.
func New(log *zap.Logger) *Transformer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transformer{log: log.Named("transform"), Features: css.FeaturesAll}
}

// invocation is exclusively owned state of one pipeline run.
type invocation struct {
	src   []byte
	name  string
	sheet *css.Stylesheet
	diags *diag.Buffer
	out   *Output
}

type phase struct {
	name string
	run  func(*invocation)
}

type plan struct {
	parser css.ParserConfig
	phases []phase
	print  css.PrintOptions
	srcMap bool
}

// Transform processes src according to opts. Context is checked once before
// any work starts, after that invocation runs to completion. Returned error is
// a *modules.PatternError for bad configuration, *diag.FatalError when src
// could not be parsed and *EmitError when output could not be produced.
func (t *Transformer) Transform(ctx context.Context, src []byte, opts Options) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := t.planTransform(opts)
	if err != nil {
		return nil, err
	}
	return t.execute(src, opts.Filename, p)
}

// Minify parses src, minifies it and emits minified code. No down-level and
// no scoping is done.
func (t *Transformer) Minify(ctx context.Context, src []byte, opts MinifyOptions) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := &plan{
		phases: []phase{{name: "minify", run: minifyPhase}},
		print:  css.PrintOptions{Minify: true, Mappings: opts.SourceMap},
		srcMap: opts.SourceMap,
	}
	return t.execute(src, opts.Filename, p)
}

// planTransform builds list of phases before anything is parsed, so
// configuration errors never reach the tree.
func (t *Transformer) planTransform(opts Options) (*plan, error) {
	p := &plan{
		print:  css.PrintOptions{Minify: opts.Minify, Mappings: opts.SourceMap},
		srcMap: opts.SourceMap,
	}

	if opts.AnalyzeDependencies {
		p.phases = append(p.phases, phase{name: "analyze", run: func(inv *invocation) {
			inv.out.Dependencies = analyze.Analyze(inv.sheet)
		}})
	}

	if opts.CSSModules != nil {
		pattern, err := modules.CompilePattern(opts.CSSModules.Pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to parse the pattern for CSS Modules: %w", err)
		}
		p.parser.CSSModules = true
		cfg := modules.Config{Pattern: pattern, Identity: modules.IdentityFor(opts.Filename)}
		p.phases = append(p.phases, phase{name: "modules", run: func(inv *invocation) {
			inv.out.ClassMapping = modules.Compile(inv.sheet, cfg)
		}})
	}

	features := t.Features
	p.phases = append(p.phases, phase{name: "downlevel", run: func(inv *invocation) {
		css.Downlevel(inv.sheet, features)
	}})

	if opts.Minify {
		p.phases = append(p.phases, phase{name: "minify", run: minifyPhase})
	}
	return p, nil
}

func minifyPhase(inv *invocation) {
	css.Minify(inv.sheet)
}

func (t *Transformer) execute(src []byte, filename string, p *plan) (*Output, error) {
	log := t.log
	if filename != "" {
		log = log.With(zap.String("source", filename))
	}
	defer func(start time.Time) {
		log.Debug("Pipeline finished", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	inv := &invocation{
		src:   src,
		name:  filename,
		diags: diag.NewBuffer(filename, src),
		out:   &Output{},
	}

	sheet, errs, err := css.NewParser(t.log, p.parser).Parse(src, filename)
	inv.diags.AddParse(errs)
	if err != nil {
		fe := inv.diags.Fatal(err)
		log.Debug("Parsing failed", zap.Int("diagnostics", len(fe.Diagnostics)), zap.Error(err))
		return nil, fe
	}
	inv.sheet = sheet

	for _, ph := range p.phases {
		start := time.Now()
		ph.run(inv)
		log.Debug("Phase completed", zap.String("phase", ph.name), zap.Duration("elapsed", time.Since(start)))
	}

	if err := emit(inv, p); err != nil {
		return nil, err
	}
	inv.out.Diagnostics = inv.diags.Diagnostics()
	return inv.out, nil
}

func emit(inv *invocation, p *plan) error {
	var b strings.Builder
	mappings, err := css.Print(&b, inv.sheet, p.print)
	if err != nil {
		return &EmitError{Stage: "code", Err: err}
	}
	inv.out.Code = b.String()

	if !p.srcMap {
		return nil
	}
	m, err := css.NewSourceMap(inv.name, inv.src, mappings).Encode()
	if err != nil {
		return &EmitError{Stage: "source map", Err: err}
	}
	inv.out.Map = &m
	return nil
}
