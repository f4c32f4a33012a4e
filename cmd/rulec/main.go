// Command rulec compiles rule language sources into rule sets.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/thomasrohde/rulec/internal/config"
	"github.com/thomasrohde/rulec/internal/watch"
	"github.com/thomasrohde/rulec/pkg/builtins"
	"github.com/thomasrohde/rulec/pkg/compiler"
	"github.com/thomasrohde/rulec/pkg/diagnostics"
	"github.com/thomasrohde/rulec/pkg/document"
	"github.com/thomasrohde/rulec/pkg/formatter"
	"github.com/thomasrohde/rulec/pkg/help"
	"github.com/thomasrohde/rulec/pkg/ruleset"
)

const (
	exitOK           = 0
	exitUsage        = 1
	exitDiagnostics  = 2
	exitIncompatible = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: rulec <command> [options]")
		fmt.Fprintln(stderr, "commands: compile, check, validate, explain, fmt, watch, version, help")
		return exitUsage
	}

	cli := &cli{stdout: stdout, stderr: stderr}
	rest := args[1:]
	switch args[0] {
	case "compile":
		return cli.compile(rest)
	case "check":
		return cli.check(rest)
	case "validate":
		return cli.validate(rest)
	case "explain":
		return cli.explain(rest)
	case "fmt":
		return cli.format(rest)
	case "watch":
		return cli.watch(rest)
	case "version", "--version":
		fmt.Fprintf(stdout, "rulec %s (%s)\n", help.Version, ruleset.Stamp)
		return exitOK
	case "help", "--help", "-h":
		return cli.help(rest)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		return exitUsage
	}
}

type cli struct {
	stdout, stderr io.Writer
}

// flags holds the options shared by the subcommands.
type flags struct {
	config     string
	output     string
	format     string
	pretty     bool
	write      bool
	namespaces bool
	index      bool
	args       []string
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{}
	value := func(i *int, name string) (string, error) {
		if *i+1 >= len(args) {
			return "", fmt.Errorf("%s requires a value", name)
		}
		*i++
		return args[*i], nil
	}
	for i := 0; i < len(args); i++ {
		var err error
		switch args[i] {
		case "--pretty":
			f.pretty = true
		case "--write", "-w":
			f.write = true
		case "--namespaces":
			f.namespaces = true
		case "--index":
			f.index = true
		case "--config", "-c":
			f.config, err = value(&i, args[i])
		case "--output", "-o":
			f.output, err = value(&i, args[i])
		case "--format":
			f.format, err = value(&i, args[i])
		default:
			if strings.HasPrefix(args[i], "-") && args[i] != "-" {
				err = fmt.Errorf("unknown option %s", args[i])
			} else {
				f.args = append(f.args, args[i])
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}

// setup parses the flags and loads the config they name.
func (c *cli) setup(args []string, usage string) (*flags, *config.Config, bool) {
	f, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(c.stderr, "error: %s\nusage: %s\n", err, usage)
		return nil, nil, false
	}
	cfg, err := config.Load(f.config)
	if err != nil {
		c.report(diagnostics.MakeDiag(diagnostics.EIO, err.Error(), nil, ""), f.pretty)
		return nil, nil, false
	}
	if f.output != "" {
		cfg.Output = f.output
	}
	if f.format != "" {
		cfg.Format = f.format
	}
	return f, cfg, true
}

func (c *cli) report(d diagnostics.Diagnostic, pretty bool) {
	fmt.Fprintln(c.stderr, diagnostics.FormatDiagnostics([]diagnostics.Diagnostic{d}, pretty))
}

func (c *cli) newCompiler(cfg *config.Config, opts ...compiler.Option) *compiler.Compiler {
	logger := log.New(io.Discard, "", 0)
	if cfg.Debug() {
		logger = log.New(c.stderr, "rulec: ", log.Ltime)
	}
	base := []compiler.Option{
		compiler.WithLogger(logger),
		compiler.WithParallelism(cfg.Parallelism),
	}
	if len(cfg.Namespaces) > 0 {
		base = append(base, compiler.WithAvailability(document.NewMemory(cfg.Namespaces...)))
	}
	return compiler.New(append(base, opts...)...)
}

func (c *cli) sources(f *flags, cfg *config.Config) ([]compiler.Source, bool) {
	sources, err := compiler.CollectSources(f.args, cfg.Extensions...)
	if err != nil {
		c.report(diagnostics.MakeDiag(diagnostics.EIO, err.Error(), nil, ""), f.pretty)
		return nil, false
	}
	if len(sources) == 0 {
		fmt.Fprintln(c.stderr, "error: no rule files found")
		return nil, false
	}
	return sources, true
}

// compileInto compiles sources and saves the rule set to cfg.Output. A rule
// set already stored there is used for incremental reuse unless its stamp
// is incompatible, in which case everything is recompiled.
func (c *cli) compileInto(ctx context.Context, cfg *config.Config, sources []compiler.Source, pretty bool) int {
	format, err := ruleset.ParseFormat(cfg.Format)
	if err != nil {
		fmt.Fprintf(c.stderr, "error: %s\n", err)
		return exitUsage
	}
	store, err := ruleset.OpenStore(ctx, cfg.Output, format)
	if err != nil {
		c.report(diagnostics.MakeDiag(diagnostics.EIO, err.Error(), nil, ""), pretty)
		return exitUsage
	}
	defer store.Close()

	var opts []compiler.Option
	switch prev, err := store.Load(ctx); {
	case err == nil:
		opts = append(opts, compiler.WithPrevious(prev.Output()))
	case errors.Is(err, ruleset.ErrNotFound), errors.Is(err, ruleset.ErrIncompatibleVersion):
	default:
		if cfg.Debug() {
			fmt.Fprintf(c.stderr, "rulec: ignoring previous rule set: %v\n", err)
		}
	}

	out, err := c.newCompiler(cfg, opts...).Compile(ctx, sources)
	if err != nil {
		return c.fail(err, pretty)
	}
	rs := ruleset.New(out)
	if err := store.Save(ctx, rs); err != nil {
		c.report(diagnostics.MakeDiag(diagnostics.EIO, err.Error(), nil, ""), pretty)
		return exitUsage
	}
	if len(out.Diagnostics) > 0 {
		fmt.Fprintln(c.stderr, diagnostics.FormatDiagnostics(out.Diagnostics, pretty))
	}
	if pretty {
		fmt.Fprintf(c.stdout, "%s -> %s\n", rs.Summary(), cfg.Output)
	}
	return exitOK
}

// fail reports a compile error and returns its exit code.
func (c *cli) fail(err error, pretty bool) int {
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(c.stderr, "interrupted")
		return exitUsage
	}
	fmt.Fprintln(c.stderr, diagnostics.FormatDiagnostics(compiler.Diagnostics(err), pretty))
	var de *compiler.DiagnosticError
	if errors.As(err, &de) {
		return exitDiagnostics
	}
	return exitUsage
}

func (c *cli) compile(args []string) int {
	const usage = "rulec compile [--config f] [-o dest] [--format json|yaml] [--pretty] paths..."
	f, cfg, ok := c.setup(args, usage)
	if !ok {
		return exitUsage
	}
	if len(f.args) == 0 {
		fmt.Fprintf(c.stderr, "usage: %s\n", usage)
		return exitUsage
	}
	sources, ok := c.sources(f, cfg)
	if !ok {
		return exitUsage
	}
	return c.compileInto(context.Background(), cfg, sources, f.pretty)
}

func (c *cli) check(args []string) int {
	const usage = "rulec check [--pretty] paths..."
	f, cfg, ok := c.setup(args, usage)
	if !ok {
		return exitUsage
	}
	if len(f.args) == 0 {
		fmt.Fprintf(c.stderr, "usage: %s\n", usage)
		return exitUsage
	}
	sources, ok := c.sources(f, cfg)
	if !ok {
		return exitUsage
	}
	diags := c.newCompiler(cfg).Check(context.Background(), sources)
	return c.printDiagnostics(diags, f.pretty)
}

func (c *cli) printDiagnostics(diags []diagnostics.Diagnostic, pretty bool) int {
	if len(diags) > 0 {
		fmt.Fprintln(c.stderr, diagnostics.FormatDiagnostics(diags, pretty))
	}
	if diagnostics.HasErrors(diags) {
		return exitDiagnostics
	}
	if len(diags) == 0 {
		if pretty {
			fmt.Fprintln(c.stdout, "No errors found.")
		} else {
			fmt.Fprintln(c.stdout, "[]")
		}
	}
	return exitOK
}

// load opens a stored rule set, mapping the failure to an exit code.
func (c *cli) load(ctx context.Context, dest string, pretty bool) (*ruleset.RuleSet, int) {
	store, err := ruleset.OpenStore(ctx, dest, ruleset.FormatJSON)
	if err != nil {
		c.report(diagnostics.MakeDiag(diagnostics.EIO, err.Error(), nil, ""), pretty)
		return nil, exitUsage
	}
	defer store.Close()
	rs, err := store.Load(ctx)
	if err == nil {
		return rs, exitOK
	}
	var ve *ruleset.VersionError
	if errors.As(err, &ve) {
		c.report(ve.Diagnostic(), pretty)
		return nil, exitIncompatible
	}
	var le *ruleset.LoadError
	if errors.As(err, &le) {
		c.report(le.Diagnostic(), pretty)
		return nil, exitUsage
	}
	c.report(diagnostics.MakeDiag(diagnostics.EIO, err.Error(), nil, ""), pretty)
	return nil, exitUsage
}

// validate recompiles the sources stored in a rule set from scratch and
// reports the resulting diagnostics.
func (c *cli) validate(args []string) int {
	const usage = "rulec validate [--pretty] [--namespaces] <ruleset>"
	f, cfg, ok := c.setup(args, usage)
	if !ok {
		return exitUsage
	}
	if len(f.args) != 1 {
		fmt.Fprintf(c.stderr, "usage: %s\n", usage)
		return exitUsage
	}
	ctx := context.Background()
	rs, code := c.load(ctx, f.args[0], f.pretty)
	if rs == nil {
		return code
	}
	if !f.namespaces {
		cfg.Namespaces = nil
	}
	diags := c.newCompiler(cfg).Validate(ctx, rs.Output())
	return c.printDiagnostics(diags, f.pretty)
}

func (c *cli) explain(args []string) int {
	const usage = "rulec explain <ruleset> <name>"
	f, err := parseFlags(args)
	if err != nil || len(f.args) != 2 {
		fmt.Fprintf(c.stderr, "usage: %s\n", usage)
		return exitUsage
	}
	rs, code := c.load(context.Background(), f.args[0], f.pretty)
	if rs == nil {
		return code
	}
	if err := rs.Explain(c.stdout, f.args[1]); err != nil {
		fmt.Fprintf(c.stderr, "error: %s\n", err)
		return exitUsage
	}
	return exitOK
}

func (c *cli) format(args []string) int {
	const usage = "rulec fmt [--write] file"
	f, err := parseFlags(args)
	if err != nil || len(f.args) != 1 {
		fmt.Fprintf(c.stderr, "usage: %s\n", usage)
		return exitUsage
	}
	file := f.args[0]

	var data []byte
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
		file = "<stdin>"
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		c.report(diagnostics.MakeDiag(diagnostics.EIO, fmt.Sprintf("cannot read file: %s", file), nil, ""), false)
		return exitUsage
	}
	source := string(data)

	formatted, err := compiler.New().Format(source, file)
	if err != nil {
		fmt.Fprintln(c.stderr, diagnostics.FormatDiagnostics(compiler.Diagnostics(err), false))
		return exitDiagnostics
	}
	if formatter.HasComments(source) {
		fmt.Fprintln(c.stderr, "warning: comments are not preserved by the formatter")
	}

	if f.write && file != "<stdin>" {
		if err := os.WriteFile(file, []byte(formatted), 0o644); err != nil {
			fmt.Fprintf(c.stderr, "error writing file: %s\n", err)
			return exitUsage
		}
		return exitOK
	}
	fmt.Fprint(c.stdout, formatted)
	return exitOK
}

func (c *cli) watch(args []string) int {
	const usage = "rulec watch [--config f] [-o dest] [--pretty] dirs..."
	f, cfg, ok := c.setup(args, usage)
	if !ok {
		return exitUsage
	}
	if len(f.args) == 0 {
		f.args = []string{"."}
	}
	w, err := watch.New(f.args, cfg.Extensions...)
	if err != nil {
		c.report(diagnostics.MakeDiag(diagnostics.EIO, err.Error(), nil, ""), f.pretty)
		return exitUsage
	}
	defer w.Close()
	w.Logger = log.New(c.stderr, "rulec: ", log.Ltime)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	build := func() error {
		sources, err := compiler.CollectSources(f.args, cfg.Extensions...)
		if err != nil {
			return err
		}
		if code := c.compileInto(ctx, cfg, sources, f.pretty); code != exitOK {
			return fmt.Errorf("exit code %d", code)
		}
		return nil
	}
	if err := build(); err != nil {
		w.Logger.Printf("initial build failed: %v", err)
	}
	if err := w.Run(ctx, build); err != nil {
		fmt.Fprintf(c.stderr, "error: %s\n", err)
		return exitUsage
	}
	return exitOK
}

func (c *cli) help(args []string) int {
	f, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(c.stderr, "error: %s\n", err)
		return exitUsage
	}
	topic := ""
	if len(f.args) > 0 {
		topic = f.args[0]
	}

	if f.index {
		if topic != "builtins" {
			fmt.Fprintln(c.stderr, "error: --index is only supported for the builtins topic (rulec help builtins --index)")
			return exitUsage
		}
		fmt.Fprint(c.stdout, help.BuiltinIndex(builtins.Default()))
		return exitOK
	}

	if topic == "" {
		fmt.Fprint(c.stdout, help.QUICKREF)
		return exitOK
	}

	_, content, err := help.MatchTopic(topic)
	if err != nil {
		fmt.Fprintf(c.stderr, "%s\nAvailable topics: %s\n", err, strings.Join(help.TopicList, ", "))
		return exitUsage
	}
	fmt.Fprint(c.stdout, content)
	return exitOK
}
