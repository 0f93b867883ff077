// Command styleq answers one computed-style query and exits.
//
// Usage:
//
//	styleq -html page.html -css theme.css -selector .highlight -property color
//	styleq -config styleq.yaml -selector "#hero" -all
//	styleq -mode real -engine /opt/servo/servo -html page.html -selector p -property display
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/styleq/engine"
	"github.com/hazyhaar/styleq/query"
)

type cssFiles []string

func (c *cssFiles) String() string { return fmt.Sprint(*c) }
func (c *cssFiles) Set(v string) error {
	*c = append(*c, v)
	return nil
}

func main() {
	var css cssFiles
	configPath := flag.String("config", "", "path to styleq.yaml config file")
	mode := flag.String("mode", "", "simulated or real (overrides config)")
	enginePath := flag.String("engine", "", "engine executable path (overrides config)")
	htmlPath := flag.String("html", "", "HTML document file (- for stdin)")
	flag.Var(&css, "css", "stylesheet file, repeatable, applied in order")
	selector := flag.String("selector", "", "CSS selector for the target element")
	property := flag.String("property", "", "property to resolve")
	all := flag.Bool("all", false, "resolve the full computed map instead of one property")
	timeout := flag.Duration("timeout", 0, "engine invocation timeout (overrides config)")
	asJSON := flag.Bool("json", false, "print the raw result as JSON")
	logLevel := flag.String("log-level", "warn", "log level: debug, info, warn, error")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, options{
		configPath: *configPath,
		mode:       *mode,
		enginePath: *enginePath,
		htmlPath:   *htmlPath,
		cssPaths:   css,
		selector:   *selector,
		property:   *property,
		all:        *all,
		timeout:    *timeout,
		asJSON:     *asJSON,
	}); err != nil {
		logger.Error("styleq: fatal", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

type options struct {
	configPath string
	mode       string
	enginePath string
	htmlPath   string
	cssPaths   []string
	selector   string
	property   string
	all        bool
	timeout    time.Duration
	asJSON     bool
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
	if opts.selector == "" {
		fmt.Fprintln(os.Stderr, "usage: styleq -html <file> [-css <file>]... -selector <sel> (-property <prop> | -all)")
		os.Exit(2)
	}
	if opts.property == "" && !opts.all {
		return fmt.Errorf("either -property or -all is required")
	}

	cfg := engine.Config{}
	if opts.configPath != "" {
		loaded, err := engine.LoadConfig(opts.configPath)
		if err != nil {
			return err
		}
		cfg = *loaded
	}
	if opts.mode != "" {
		cfg.Mode = engine.Mode(opts.mode)
	}
	if opts.enginePath != "" {
		cfg.ExecutablePath = opts.enginePath
	}
	if opts.timeout > 0 {
		cfg.Timeout = opts.timeout
	}

	html, err := readInput(opts.htmlPath)
	if err != nil {
		return err
	}
	var sheets []string
	for _, path := range opts.cssPaths {
		css, err := readInput(path)
		if err != nil {
			return err
		}
		sheets = append(sheets, css)
	}

	eng, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		return err
	}
	defer eng.Close()

	q := query.StyleQuery{
		HTML:     html,
		CSS:      sheets,
		Selector: opts.selector,
		Property: opts.property,
	}
	res, err := eng.Query(ctx, q)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("query failed: %s", res.Error)
	}

	if opts.asJSON {
		return json.NewEncoder(os.Stdout).Encode(res)
	}
	if opts.all {
		props := make([]string, 0, len(res.ComputedStyles))
		for p := range res.ComputedStyles {
			props = append(props, p)
		}
		sort.Strings(props)
		for _, p := range props {
			fmt.Printf("%s: %s\n", p, res.ComputedStyles[p])
		}
		return nil
	}
	fmt.Println(res.ComputedValue)
	return nil
}

func readInput(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("-html is required")
	}
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
