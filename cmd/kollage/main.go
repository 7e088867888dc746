package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/charmbracelet/fang"
	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hylla/kollage/internal/adapters/imageprobe"
	"github.com/hylla/kollage/internal/adapters/notify/redispub"
	serveradapter "github.com/hylla/kollage/internal/adapters/server"
	servercommon "github.com/hylla/kollage/internal/adapters/server/common"
	"github.com/hylla/kollage/internal/adapters/server/liveapi"
	"github.com/hylla/kollage/internal/adapters/storage/jsonfile"
	"github.com/hylla/kollage/internal/adapters/storage/sqlite"
	"github.com/hylla/kollage/internal/app"
	"github.com/hylla/kollage/internal/config"
	"github.com/hylla/kollage/internal/domain"
	"github.com/hylla/kollage/internal/platform"
	"github.com/hylla/kollage/internal/tui"
)

// version is stamped at build time.
var version = "dev"

// program represents the TUI program loop.
type program interface {
	Run() (tea.Model, error)
}

// programFactory builds the TUI program. Tests replace it.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the HTTP, MCP, and live serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

// redisDialer connects the optional cross-process publisher.
var redisDialer = func(ctx context.Context, cfg redispub.Config) (app.ChangeSink, io.Closer, error) {
	pub, err := redispub.Dial(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return pub, pub, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root := newRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := fang.Execute(ctx, root, fang.WithVersion(version)); err != nil {
		stop()
		os.Exit(1)
	}
}

// run executes one command line without fang styling. Tests drive the CLI through it.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(strings.NewReader(""), stdout, stderr)
	root.SetArgs(args)
	root.SilenceErrors = true
	root.SilenceUsage = true
	return root.ExecuteContext(ctx)
}

// globalOptions holds flags shared by every command.
type globalOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// newRootCommand builds the command tree.
func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{
		appName: platform.DefaultAppName,
		devMode: version == "dev",
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}
	if envDev, ok := parseBoolEnv("KOLLAGE_DEV_MODE"); ok {
		opts.devMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("KOLLAGE_APP_NAME")); envApp != "" {
		opts.appName = envApp
	}

	var boardID string
	root := &cobra.Command{
		Use:     "kollage",
		Short:   "Arrange images on a snapping collage grid",
		Long:    "kollage keeps image collages on a column grid: tiles snap to cells, resize by aspect, and pack densely.",
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), opts, boardID)
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to config TOML")
	pf.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	pf.StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	pf.BoolVar(&opts.devMode, "dev", opts.devMode, "use dev mode paths (<app>-dev)")
	root.Flags().StringVar(&boardID, "board", "", "board to open (default: first board, seeded when none exist)")

	root.AddCommand(
		newServeCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
		newAddCommand(opts),
		newPackCommand(opts),
		newBoardsCommand(opts),
		newPathsCommand(opts),
		newVersionCommand(opts),
	)
	return root
}

// newServeCommand builds the serve command.
func newServeCommand(opts *globalOptions) *cobra.Command {
	var httpBind, apiEndpoint, mcpEndpoint, liveEndpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API, MCP tools, and live gesture stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openRuntime(cmd.Context(), opts, "serve", true)
			if err != nil {
				return err
			}
			defer env.Close()

			srv := env.cfg.Server
			flags := cmd.Flags()
			if flags.Changed("http") {
				srv.HTTPBind = httpBind
			}
			if flags.Changed("api-endpoint") {
				srv.APIEndpoint = apiEndpoint
			}
			if flags.Changed("mcp-endpoint") {
				srv.MCPEndpoint = mcpEndpoint
			}
			if flags.Changed("live-endpoint") {
				srv.LiveEndpoint = liveEndpoint
			}

			charmLog.SetDefault(env.logger.Primary())
			hub := liveapi.NewHub()
			env.svc.Subscribe(hub)
			env.startMirrorWatch(cmd.Context())

			adapter := servercommon.NewAppServiceAdapter(env.svc, env.prober.Blobs())
			env.logger.Info("command flow start", "command", "serve", "http", srv.HTTPBind, "api", srv.APIEndpoint, "mcp", srv.MCPEndpoint, "live", srv.LiveEndpoint)
			err = serveCommandRunner(cmd.Context(), serveradapter.Config{
				HTTPBind:      srv.HTTPBind,
				APIEndpoint:   srv.APIEndpoint,
				MCPEndpoint:   srv.MCPEndpoint,
				LiveEndpoint:  srv.LiveEndpoint,
				ServerName:    opts.appName,
				ServerVersion: version,
			}, serveradapter.Dependencies{
				Boards: adapter,
				Blobs:  adapter,
				Live:   liveapi.NewHandler(env.svc, hub, liveapi.Config{AllowedOrigins: srv.AllowedOrigins}),
			})
			if err != nil {
				env.logger.Error("command flow failed", "command", "serve", "err", err)
				return fmt.Errorf("run serve command: %w", err)
			}
			env.logger.Info("command flow complete", "command", "serve")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&httpBind, "http", "", "HTTP listen address (overrides server.http_bind)")
	f.StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base endpoint")
	f.StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint")
	f.StringVar(&liveEndpoint, "live-endpoint", "", "live websocket endpoint")
	return cmd
}

// newExportCommand builds the export command.
func newExportCommand(opts *globalOptions) *cobra.Command {
	var boardID, outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a board document as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := openRuntime(ctx, opts, "export", true)
			if err != nil {
				return err
			}
			defer env.Close()

			id, err := env.resolveBoard(ctx, boardID)
			if err != nil {
				return err
			}
			doc, err := env.svc.ExportDocument(ctx, id)
			if err != nil {
				return fmt.Errorf("export document: %w", err)
			}
			encoded, err := app.EncodeDocument(doc)
			if err != nil {
				return err
			}
			encoded = append(encoded, '\n')
			if outPath == "-" {
				if _, err := opts.stdout.Write(encoded); err != nil {
					return fmt.Errorf("write document to stdout: %w", err)
				}
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create export output dir: %w", err)
			}
			if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
				return fmt.Errorf("write export file: %w", err)
			}
			env.logger.Info("command flow complete", "command", "export", "board_id", id, "out", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&boardID, "board", "", "board id (default: first board)")
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	return cmd
}

// newImportCommand builds the import command.
func newImportCommand(opts *globalOptions) *cobra.Command {
	var (
		boardID string
		inPath  string
		repack  bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace a board's tiles from a JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(boardID) == "" {
				return errors.New("--board is required")
			}
			if inPath == "" {
				return errors.New("--in is required")
			}
			var (
				raw []byte
				err error
			)
			if inPath == "-" {
				raw, err = io.ReadAll(opts.stdin)
			} else {
				raw, err = os.ReadFile(inPath)
			}
			if err != nil {
				return fmt.Errorf("read import document: %w", err)
			}

			ctx := cmd.Context()
			env, err := openRuntime(ctx, opts, "import", true)
			if err != nil {
				return err
			}
			defer env.Close()

			board, err := env.svc.ImportDocument(ctx, boardID, raw, app.ImportOptions{Repack: repack})
			switch {
			case errors.Is(err, domain.ErrUnpackable):
				_, _ = fmt.Fprintf(opts.stdout, "imported %d tiles into %s (warning: %v)\n", len(board.Tiles), board.ID, err)
				return nil
			case err != nil:
				return fmt.Errorf("import document: %w", err)
			}
			_, _ = fmt.Fprintf(opts.stdout, "imported %d tiles into %s\n", len(board.Tiles), board.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&boardID, "board", "", "target board id (created when missing)")
	f.StringVar(&inPath, "in", "", "input document JSON file ('-' for stdin)")
	f.BoolVar(&repack, "repack", false, "re-run the packing pass after import")
	return cmd
}

// newAddCommand builds the add command.
func newAddCommand(opts *globalOptions) *cobra.Command {
	var (
		boardID  string
		source   string
		colSpan  int
		rowSpan  int
		colStart int
		rowStart int
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an image tile to a board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := openRuntime(ctx, opts, "add", true)
			if err != nil {
				return err
			}
			defer env.Close()

			id, err := env.resolveBoard(ctx, boardID)
			if err != nil {
				return err
			}
			in := app.AddTileInput{Source: source, ColumnSpan: colSpan, RowSpan: rowSpan}
			if cmd.Flags().Changed("col") {
				in.ColumnStart = &colStart
			}
			if cmd.Flags().Changed("row") {
				in.RowStart = &rowStart
			}
			tile, err := env.svc.AddTile(ctx, id, in)
			if err != nil {
				return fmt.Errorf("add tile: %w", err)
			}
			layout, err := env.svc.Layout(ctx, id)
			if err != nil {
				return err
			}
			where := "auto"
			if p, ok := layout.Placement(tile.ID); ok {
				where = fmt.Sprintf("%d,%d", p.Column, p.Row)
			}
			_, _ = fmt.Fprintf(opts.stdout, "added %s to %s at %s span %dx%d\n", tile.ID, id, where, tile.ColumnSpan, tile.RowSpan)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&boardID, "board", "", "board id (default: first board)")
	f.StringVar(&source, "source", "", "image source: http(s) URL, data: URL, or blob: reference")
	f.IntVar(&colSpan, "cols", 0, "column span (default: board default span)")
	f.IntVar(&rowSpan, "rows", 0, "row span (default: derived from the image aspect)")
	f.IntVar(&colStart, "col", 0, "explicit 1-based column start")
	f.IntVar(&rowStart, "row", 0, "explicit 1-based row start")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

// newPackCommand builds the pack command.
func newPackCommand(opts *globalOptions) *cobra.Command {
	var boardID string
	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Re-flow every tile onto the grid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := openRuntime(ctx, opts, "pack", true)
			if err != nil {
				return err
			}
			defer env.Close()

			id, err := env.resolveBoard(ctx, boardID)
			if err != nil {
				return err
			}
			board, err := env.svc.Pack(ctx, id)
			switch {
			case errors.Is(err, domain.ErrUnpackable):
				_, _ = fmt.Fprintf(opts.stdout, "packed %d tiles; some could not fit\n", len(board.Tiles))
				return nil
			case err != nil:
				return fmt.Errorf("pack board: %w", err)
			}
			_, _ = fmt.Fprintf(opts.stdout, "packed %d tiles\n", len(board.Tiles))
			return nil
		},
	}
	cmd.Flags().StringVar(&boardID, "board", "", "board id (default: first board)")
	return cmd
}

// newBoardsCommand builds the boards listing command.
func newBoardsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "boards",
		Short: "List boards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := openRuntime(ctx, opts, "boards", true)
			if err != nil {
				return err
			}
			defer env.Close()

			boards, err := env.svc.ListBoards(ctx)
			if err != nil {
				return fmt.Errorf("list boards: %w", err)
			}
			cell := lipgloss.NewStyle().PaddingRight(2)
			tbl := table.New().
				Border(lipgloss.HiddenBorder()).
				BorderTop(false).
				BorderBottom(false).
				BorderLeft(false).
				BorderRight(false).
				BorderHeader(false).
				BorderColumn(false).
				StyleFunc(func(_, _ int) lipgloss.Style { return cell }).
				Headers("ID", "TILES", "COLUMNS", "OVERFLOW", "UPDATED")
			for _, b := range boards {
				tbl.Row(b.ID, strconv.Itoa(len(b.Tiles)), strconv.Itoa(b.Grid.Columns), string(b.Overflow), b.UpdatedAt.Local().Format(time.DateTime))
			}
			_, err = fmt.Fprintln(opts.stdout, tbl.String())
			return err
		},
	}
}

// newPathsCommand builds the paths command.
func newPathsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			paths, err := platform.DefaultPathsWithOptions(platform.Options{AppName: opts.appName, DevMode: opts.devMode})
			if err != nil {
				return err
			}
			configPath, dbPath, _ := opts.resolvePaths(paths)
			out := opts.stdout
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", configPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", dbPath)
			_, _ = fmt.Fprintf(out, "mirror_dir: %s\n", paths.MirrorDir)
			return nil
		},
	}
}

// newVersionCommand builds the version command.
func newVersionCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(opts.stdout, "%s %s\n", opts.appName, version)
			return err
		},
	}
}

// runTUI opens the board preview.
func runTUI(ctx context.Context, opts *globalOptions, boardID string) error {
	env, err := openRuntime(ctx, opts, "tui", false)
	if err != nil {
		return err
	}
	defer env.Close()

	feed := tui.NewSaveFeed()
	env.svc.Subscribe(feed)
	id, err := env.resolveBoard(ctx, boardID)
	if err != nil {
		return err
	}
	env.startMirrorWatch(ctx)

	env.logger.Info("starting tui program loop", "board_id", id)
	if _, err := programFactory(tui.NewModel(env.svc, id, tui.WithSaveFeed(feed))).Run(); err != nil {
		env.logger.Error("tui program terminated with error", "err", err)
		return fmt.Errorf("run tui program: %w", err)
	}
	env.logger.Info("command flow complete", "command", "tui")
	return nil
}

// resolvePaths applies flag and environment overrides. The bool reports an explicit database path.
func (o *globalOptions) resolvePaths(paths platform.Paths) (string, string, bool) {
	configPath := strings.TrimSpace(o.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("KOLLAGE_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(o.dbPath)
	if dbPath != "" {
		return configPath, dbPath, true
	}
	if envPath := strings.TrimSpace(os.Getenv("KOLLAGE_DB_PATH")); envPath != "" {
		return configPath, envPath, true
	}
	return configPath, paths.DBPath, false
}

// runtimeEnv holds the wired service graph for one command.
type runtimeEnv struct {
	cfg     config.Config
	logger  *runtimeLogger
	repo    *sqlite.Repository
	prober  *imageprobe.Prober
	mirror  *jsonfile.Mirror
	svc     *app.Service
	closers []io.Closer

	stopWatch context.CancelFunc
	watchers  sync.WaitGroup
}

// openRuntime loads config, opens storage, and wires the service with its change sinks.
func openRuntime(ctx context.Context, opts *globalOptions, command string, console bool) (*runtimeEnv, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{AppName: opts.appName, DevMode: opts.devMode})
	if err != nil {
		return nil, err
	}
	configPath, dbPath, dbOverridden := opts.resolvePaths(paths)
	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	defaults, err := boardDefaults(cfg.Board)
	if err != nil {
		return nil, err
	}

	logger, err := newRuntimeLogger(opts.stderr, opts.appName, opts.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	// The TUI owns the terminal; runtime logs go to the dev file only.
	logger.SetConsoleEnabled(console)
	env := &runtimeEnv{cfg: cfg, logger: logger}

	logger.Info("startup configuration resolved", "app", opts.appName, "dev_mode", opts.devMode, "command", command)
	logger.Debug("configuration loaded", "config_path", configPath, "db_path", cfg.Database.Path, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	env.repo = repo

	img := cfg.Images
	env.prober = imageprobe.New(imageprobe.Config{
		MaxBytes:     img.MaxBytes,
		FetchRate:    img.FetchRate,
		FetchBurst:   img.FetchBurst,
		UserAgent:    opts.appName + "/" + version,
		BlockPrivate: img.BlockPrivate,
		Blobs:        imageprobe.NewBlobStore(img.MaxBytes),
	})

	env.svc = app.NewService(repo, env.prober, uuid.NewString, time.Now, app.ServiceConfig{
		Board:             defaults,
		LoadTimeout:       img.LoadTimeout.Std(),
		ImportConcurrency: img.ImportConcurrency,
		Debounce:          cfg.Notify.Debounce.Std(),
		OnPublishError: func(boardID string, err error) {
			logger.Warn("change notification failed", "board_id", boardID, "err", err)
		},
	})

	mirrorDir := strings.TrimSpace(cfg.Notify.MirrorPath)
	if mirrorDir == "" {
		mirrorDir = paths.MirrorDir
	}
	mirror, err := jsonfile.New(mirrorDir)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("open document mirror: %w", err)
	}
	env.mirror = mirror
	env.svc.Subscribe(mirror)
	logger.Debug("document mirror ready", "dir", mirror.Dir())

	if addr := strings.TrimSpace(cfg.Notify.RedisAddr); addr != "" {
		sink, closer, err := redisDialer(ctx, redispub.Config{Addr: addr, Channel: cfg.Notify.RedisChannel})
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("connect redis publisher: %w", err)
		}
		env.svc.Subscribe(sink)
		env.closers = append(env.closers, closer)
		logger.Info("redis publisher ready", "addr", addr, "channel", cfg.Notify.RedisChannel)
	}
	return env, nil
}

// resolveBoard returns boardID when it exists, or the default board when boardID is empty.
func (e *runtimeEnv) resolveBoard(ctx context.Context, boardID string) (string, error) {
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		b, err := e.svc.EnsureDefaultBoard(ctx)
		if err != nil {
			return "", fmt.Errorf("ensure default board: %w", err)
		}
		return b.ID, nil
	}
	if _, err := e.svc.GetBoard(ctx, boardID); err != nil {
		return "", fmt.Errorf("open board %q: %w", boardID, err)
	}
	return boardID, nil
}

// startMirrorWatch re-imports externally edited mirror documents when notify.watch_mirror is set.
func (e *runtimeEnv) startMirrorWatch(ctx context.Context) {
	if !e.cfg.Notify.WatchMirror || e.mirror == nil || e.stopWatch != nil {
		return
	}
	watchCtx, cancel := context.WithCancel(ctx)
	e.stopWatch = cancel
	importer := func(ctx context.Context, boardID string, raw []byte) error {
		_, err := e.svc.ImportDocument(ctx, boardID, raw, app.ImportOptions{})
		if err == nil {
			e.logger.Info("mirror document reimported", "board_id", boardID)
		}
		return err
	}
	e.watchers.Go(func() {
		err := e.mirror.Watch(watchCtx, importer, func(err error) {
			e.logger.Warn("mirror reimport failed", "err", err)
		})
		if err != nil {
			e.logger.Error("mirror watch stopped", "dir", e.mirror.Dir(), "err", err)
		}
	})
	e.logger.Info("mirror watch started", "dir", e.mirror.Dir())
}

// Close stops watchers, flushes pending notifications, and releases storage.
func (e *runtimeEnv) Close() {
	if e.stopWatch != nil {
		e.stopWatch()
	}
	e.watchers.Wait()
	if e.svc != nil {
		e.svc.Close()
	}
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			e.logger.Warn("sink close failed", "err", err)
		}
	}
	if e.repo != nil {
		if err := e.repo.Close(); err != nil {
			e.logger.Warn("sqlite close failed", "db_path", e.cfg.Database.Path, "err", err)
		}
	}
	if err := e.logger.Close(); err != nil && e.logger.shouldLogToSink(e.logger.consoleSink) {
		_, _ = fmt.Fprintf(e.logger.stderr, "warning: close runtime log sink: %v\n", err)
	}
}

// boardDefaults converts the [board] config section.
func boardDefaults(cfg config.BoardConfig) (app.BoardDefaults, error) {
	overflow, err := domain.ParseOverflowMode(cfg.Overflow)
	if err != nil {
		return app.BoardDefaults{}, err
	}
	return app.BoardDefaults{
		Grid: domain.GridSettings{
			Columns:   cfg.Columns,
			RowHeight: cfg.RowHeight,
			Gap:       cfg.Gap,
		},
		DefaultColumnSpan: cfg.DefaultColumnSpan,
		Overflow:          overflow,
		Viewport:          domain.Size{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
	}, nil
}

// parseBoolEnv reads a boolean environment variable. The second result is false when unset or invalid.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
