// Command snapshotctl is the operator-facing front end for the tablet
// Snapshot Manager: it wires an engine bridge from a YAML config file and
// drives MakeSnapshot, ReleaseSnapshot and ConvertRowsetIds from the
// command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/nexustablet/snapshotd/config"
	"github.com/nexustablet/snapshotd/core"
	"github.com/nexustablet/snapshotd/hooks"
	"github.com/nexustablet/snapshotd/idgen"
	"github.com/nexustablet/snapshotd/internal"
	"github.com/nexustablet/snapshotd/snapshot"
	"github.com/nexustablet/snapshotd/tablet"
)

// engineBridge is the concrete EngineProvider snapshotctl assembles from a
// loaded config and a single tablet directory. It has no server behind it;
// it exists only to satisfy the manager's collaborator surface.
type engineBridge struct {
	cfg     *config.Config
	tm      *tablet.Manager
	engine  *idgen.StorageEngine
	fs      internal.FilesystemHelper
	logger  *slog.Logger
	tracer  trace.Tracer
	hookMgr hooks.HookManager
}

func (e *engineBridge) GetTabletManager() *tablet.Manager             { return e.tm }
func (e *engineBridge) GetStorageEngine() *idgen.StorageEngine        { return e.engine }
func (e *engineBridge) GetFilesystemHelper() internal.FilesystemHelper { return e.fs }
func (e *engineBridge) GetLogger() *slog.Logger                       { return e.logger }
func (e *engineBridge) GetTracer() trace.Tracer                       { return e.tracer }
func (e *engineBridge) GetHookManager() hooks.HookManager              { return e.hookMgr }
func (e *engineBridge) DefaultTimeoutSeconds() int64                  { return e.cfg.Snapshot.DefaultTimeoutSeconds }
func (e *engineBridge) MaxLinkConcurrency() int                       { return e.cfg.Snapshot.MaxLinkConcurrency }

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "make":
		runMake(os.Args[2:])
	case "release":
		runRelease(os.Args[2:])
	case "convert-ids":
		runConvertIds(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `snapshotctl - tablet snapshot manager CLI

Usage:
  snapshotctl make        -config <path> -tablet-dir <path> -tablet-id <id> -schema-hash <hash> [-version <n>] [-timeout <seconds>]
  snapshotctl release     -config <path> -path <snapshot-dir>
  snapshotctl convert-ids -config <path> -clone-dir <path> -new-tablet-id <id> -new-schema-hash <hash>`)
}

func runMake(args []string) {
	fs := flag.NewFlagSet("make", flag.ExitOnError)
	configPath := fs.String("config", "", "path to snapshotd.yaml (optional, defaults used if absent)")
	tabletDir := fs.String("tablet-dir", "", "on-disk directory holding the tablet's rowsets and header (required)")
	tabletID := fs.Int64("tablet-id", 0, "tablet id (required)")
	schemaHash := fs.Uint("schema-hash", 0, "schema hash (required)")
	version := fs.Int64("version", -1, "target end-version for a full snapshot (-1 means latest)")
	timeout := fs.Int64("timeout", 0, "override timeout in seconds (0 means use config default)")
	format := fs.String("format", "", "override preferred snapshot version, V1 or V2 (blank uses config)")
	fs.Parse(args)

	if *tabletDir == "" || *tabletID == 0 || *schemaHash == 0 {
		fmt.Fprintln(os.Stderr, "make requires -tablet-dir, -tablet-id and -schema-hash")
		fs.Usage()
		os.Exit(1)
	}

	bridge, cleanup, err := buildEngineBridge(*configPath)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	if err := registerTabletFromDisk(bridge, *tabletDir, *tabletID, uint32(*schemaHash)); err != nil {
		fatal(err)
	}

	req := &core.SnapshotRequest{
		TabletID:                 *tabletID,
		SchemaHash:               uint32(*schemaHash),
		PreferredSnapshotVersion: bridge.cfg.PreferredFormat(),
	}
	if *version >= 0 {
		req.Version = version
	}
	if *timeout > 0 {
		req.TimeoutSeconds = timeout
	}
	if *format != "" {
		switch strings.ToUpper(*format) {
		case "V1":
			req.PreferredSnapshotVersion = core.SnapshotFormatV1
		case "V2":
			req.PreferredSnapshotVersion = core.SnapshotFormatV2
		default:
			fatal(fmt.Errorf("unknown -format %q, expected V1 or V2", *format))
		}
	}

	mgr := snapshot.NewManager(bridge)
	path, err := mgr.MakeSnapshot(context.Background(), req)
	if err != nil {
		fatal(err)
	}
	fmt.Println(path)
}

func runRelease(args []string) {
	fs := flag.NewFlagSet("release", flag.ExitOnError)
	configPath := fs.String("config", "", "path to snapshotd.yaml (optional, defaults used if absent)")
	path := fs.String("path", "", "snapshot directory to release (required)")
	fs.Parse(args)

	if *path == "" {
		fmt.Fprintln(os.Stderr, "release requires -path")
		fs.Usage()
		os.Exit(1)
	}

	bridge, cleanup, err := buildEngineBridge(*configPath)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	mgr := snapshot.NewManager(bridge)
	if err := mgr.ReleaseSnapshot(context.Background(), *path); err != nil {
		fatal(err)
	}
	fmt.Println("released", *path)
}

func runConvertIds(args []string) {
	fs := flag.NewFlagSet("convert-ids", flag.ExitOnError)
	configPath := fs.String("config", "", "path to snapshotd.yaml (optional, defaults used if absent)")
	cloneDir := fs.String("clone-dir", "", "restored clone directory to rebind (required)")
	newTabletID := fs.Int64("new-tablet-id", 0, "tablet id to rebind rowsets under (required)")
	newSchemaHash := fs.Uint("new-schema-hash", 0, "schema hash to rebind rowsets under (required)")
	fs.Parse(args)

	if *cloneDir == "" || *newTabletID == 0 || *newSchemaHash == 0 {
		fmt.Fprintln(os.Stderr, "convert-ids requires -clone-dir, -new-tablet-id and -new-schema-hash")
		fs.Usage()
		os.Exit(1)
	}

	bridge, cleanup, err := buildEngineBridge(*configPath)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	mgr := snapshot.NewManager(bridge)
	if err := mgr.ConvertRowsetIds(context.Background(), *cloneDir, *newTabletID, uint32(*newSchemaHash)); err != nil {
		fatal(err)
	}
	fmt.Println("rebound rowset ids under", *cloneDir)
}

// registerTabletFromDisk reads a tablet's persisted header (as written by
// a prior MakeSnapshot or by the engine that owns it) and registers a
// tablet.TabletRef so the manager has something to select rowsets from.
func registerTabletFromDisk(bridge *engineBridge, tabletDir string, tabletID int64, schemaHash uint32) error {
	header, err := snapshot.LoadTabletHeader(bridge.fs, tabletDir, tabletID)
	if err != nil {
		return fmt.Errorf("load tablet header from %s: %w", tabletDir, err)
	}
	ref := tablet.NewRef(tabletID, schemaHash, header.Schema, tabletDir, header)
	bridge.tm.RegisterTablet(ref)
	return nil
}

func buildEngineBridge(configPath string) (*engineBridge, func(), error) {
	var cfg *config.Config
	var err error
	if configPath == "" {
		cfg, err = config.Load(nil)
	} else {
		cfg, err = config.LoadFile(configPath)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}

	tp, tracerCleanup, err := initTracerProvider(cfg.Tracing, logger)
	if err != nil {
		logCloser()
		return nil, nil, err
	}

	stores := make([]idgen.DataDir, 0, len(cfg.Paths.DataRoots))
	for _, root := range cfg.Paths.DataRoots {
		stores = append(stores, idgen.DataDir{Path: root})
	}

	bridge := &engineBridge{
		cfg:     cfg,
		tm:      tablet.NewManager(),
		engine:  idgen.NewStorageEngine(stores...),
		fs:      internal.New(),
		logger:  logger,
		tracer:  tp.Tracer("snapshotctl"),
		hookMgr: hooks.NewHookManager(logger),
	}

	cleanup := func() {
		tracerCleanup()
		bridge.hookMgr.Stop()
		logCloser()
	}
	return bridge, cleanup, nil
}

func buildLogger(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var output io.Writer = os.Stderr
	closer := func() {}
	switch strings.ToLower(cfg.Output) {
	case "", "stdout", "stderr":
		// already set to stderr; keep operator prompts on stdout separate.
	case "file":
		if cfg.File == "" {
			return nil, nil, fmt.Errorf("log output is 'file' but no file path given")
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", cfg.File, err)
		}
		output = file
		closer = func() { file.Close() }
	case "none":
		output = io.Discard
	default:
		return nil, nil, fmt.Errorf("invalid log output %q", cfg.Output)
	}

	return slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level})), closer, nil
}

// initTracerProvider returns a real OTLP-backed provider when tracing is
// enabled, or a no-batching provider (which still yields a usable no-op
// tracer) when it isn't.
func initTracerProvider(cfg config.TracingConfig, logger *slog.Logger) (*sdktrace.TracerProvider, func(), error) {
	if !cfg.Enabled {
		logger.Info("distributed tracing disabled")
		return sdktrace.NewTracerProvider(), func() {}, nil
	}

	logger.Info("initializing distributed tracing", "protocol", cfg.Protocol, "endpoint", cfg.Endpoint)

	ctx := context.Background()
	var exporter sdktrace.SpanExporter
	var err error
	switch strings.ToLower(cfg.Protocol) {
	case "http":
		exporter, err = otlptrace.New(ctx, otlptracehttp.NewClient(otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()))
	case "grpc":
		exporter, err = otlptrace.New(ctx, otlptracegrpc.NewClient(otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()))
	default:
		return nil, nil, fmt.Errorf("unsupported tracing protocol %q", cfg.Protocol)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String("snapshotd")))
	if err != nil {
		return nil, nil, fmt.Errorf("build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer provider shutdown failed", "error", err)
		}
	}
	return tp, cleanup, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "snapshotctl: error: %v", err)
	if kind := core.KindOf(err); kind != core.KindUnknown {
		fmt.Fprintf(os.Stderr, " (kind=%s)", kind)
	}
	fmt.Fprintln(os.Stderr)
	os.Exit(1)
}
