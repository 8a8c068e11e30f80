package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"thumbnailer/internal/database"
	"thumbnailer/internal/filesystem"
	"thumbnailer/internal/render"
	"thumbnailer/internal/startup"
	"thumbnailer/internal/thumbnail"
	"thumbnailer/internal/workers"
)

// Default timeout for database operations
const defaultTimeout = 30 * time.Second

var errUsage = errors.New("usage")

// cli carries everything a command needs. Tests build one directly.
type cli struct {
	out    io.Writer
	errOut io.Writer
	color  bool
	// vips starts libvips before rendering. Off in tests.
	vips bool

	config *startup.Config
	db     *database.Database
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{
		out:    os.Stdout,
		errOut: os.Stderr,
		color:  term.IsTerminal(int(os.Stdout.Fd())),
		vips:   true,
	}
	os.Exit(c.run(ctx, os.Args[1:]))
}

// run executes one command and returns the process exit code.
func (c *cli) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		c.printUsage()
		return 1
	}

	config, err := startup.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(c.errOut, "Error: %v\n", err)
		return 1
	}
	c.config = config

	if err := os.MkdirAll(config.DatabaseDir, 0o755); err != nil {
		fmt.Fprintf(c.errOut, "Error: Failed to create database directory: %v\n", err)
		return 1
	}

	dbCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	db, err := database.New(dbCtx, config.DatabasePath)
	cancel()
	if err != nil {
		fmt.Fprintf(c.errOut, "Error: Failed to open settings database: %v\n", err)
		fmt.Fprintf(c.errOut, "Make sure DATABASE_DIR is set correctly (current: %s)\n", config.DatabaseDir)
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(c.errOut, "Warning: failed to close database: %v\n", err)
		}
	}()
	c.db = db

	command, rest := args[0], args[1:]
	switch command {
	case "create":
		err = c.create(ctx, rest)
	case "path":
		err = c.path(ctx, rest)
	case "limits":
		err = c.limits(ctx)
	case "set-limit":
		err = c.setLimit(ctx, rest)
	case "settings":
		err = c.settings(ctx)
	case "set-preview":
		err = c.setPreview(ctx, rest)
	default:
		fmt.Fprintf(c.errOut, "Unknown command: %s\n", sanitizeCommand(command))
		c.printUsage()
		return 1
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		c.printUsage()
	default:
		fmt.Fprintf(c.errOut, "%s %v\n", c.paint(red, "Error:"), err)
	}
	return 1
}

// sanitizeCommand returns a safe representation of a command string for display.
// Anything outside [a-zA-Z0-9_-] becomes '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func (c *cli) printUsage() {
	fmt.Fprintln(c.out, "Thumbnail Cache Control")
	fmt.Fprintln(c.out, "")
	fmt.Fprintln(c.out, "Usage: thumbctl <command> [arguments]")
	fmt.Fprintln(c.out, "")
	fmt.Fprintln(c.out, "Commands:")
	fmt.Fprintln(c.out, "  create <size> <path>...     - Render thumbnails now")
	fmt.Fprintln(c.out, "  path <size> <path>          - Print the cached thumbnail path")
	fmt.Fprintln(c.out, "  limits                      - Show source size limits")
	fmt.Fprintln(c.out, "  set-limit <mime|*> <bytes>  - Store a size limit")
	fmt.Fprintln(c.out, "  settings                    - Show preview toggles")
	fmt.Fprintln(c.out, "  set-preview <key> <on|off>  - Change a preview toggle")
	fmt.Fprintln(c.out, "")
	fmt.Fprintln(c.out, "Sizes: small, normal, large")
	fmt.Fprintln(c.out, "")
	fmt.Fprintln(c.out, "Environment:")
	fmt.Fprintln(c.out, "  CACHE_DIR    - Cache root (default: /cache)")
	fmt.Fprintln(c.out, "  DATABASE_DIR - Path to database directory (default: /database)")
	fmt.Fprintln(c.out, "  TOOL_DIRS    - Thumbnail tool roots (default: /usr/lib/thumbnailer/tools)")
}

// service builds a thumbnail service over the configured cache with the
// stored settings and limits applied.
func (c *cli) service(ctx context.Context) (*thumbnail.Service, error) {
	if c.vips {
		if err := render.InitVips(workers.ForCPU(0)); err != nil {
			fmt.Fprintf(c.errOut, "Warning: libvips unavailable: %v\n", err)
		}
	}

	video := render.NewVideoProvider(c.config.ExtraVideoMimes, c.config.ToolTimeout)
	svc, err := thumbnail.New(thumbnail.Options{
		Root: c.config.ThumbnailDir,
		Renderer: render.NewDispatcher(&render.Fallback{
			Provider: video,
			Tools:    render.NewToolRegistry(c.config.ToolDirs),
			Runner:   &render.ToolRunner{Timeout: c.config.ToolTimeout},
		}),
		Provider:         video,
		Settings:         c.db,
		Copying:          filesystem.NewWriteActivity(),
		ExtraVideoMimes:  c.config.ExtraVideoMimes,
		DefaultSizeLimit: c.config.DefaultSizeLimit,
		QueueSize:        1,
	})
	if err != nil {
		return nil, err
	}

	if _, err := c.db.ApplySizeLimits(ctx, svc); err != nil {
		return nil, fmt.Errorf("failed to load size limits: %w", err)
	}
	return svc, nil
}

func (c *cli) create(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	size, err := thumbnail.ParseSizeClass(args[0])
	if err != nil {
		return err
	}

	svc, err := c.service(ctx)
	if err != nil {
		return err
	}
	if c.vips {
		defer render.ShutdownVips()
	}

	failed := 0
	for _, path := range args[1:] {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		thumb, err := svc.CreateThumbnailContext(ctx, path, size)
		if err != nil {
			failed++
			fmt.Fprintf(c.out, "%s %s: %v\n", c.paint(red, "FAIL"), path, err)
			continue
		}
		fmt.Fprintf(c.out, "%s %s -> %s\n", c.paint(green, "OK"), path, thumb)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d thumbnails failed", failed, len(args)-1)
	}
	return nil
}

func (c *cli) path(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	size, err := thumbnail.ParseSizeClass(args[0])
	if err != nil {
		return err
	}

	svc, err := c.service(ctx)
	if err != nil {
		return err
	}

	thumb := svc.ThumbnailFilePath(args[1], size)
	if thumb == "" {
		return fmt.Errorf("no up to date %s thumbnail for %s", size, args[1])
	}
	fmt.Fprintln(c.out, thumb)
	return nil
}

func (c *cli) limits(ctx context.Context) error {
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}

	limits := svc.SizeLimits()
	mimes := make([]string, 0, len(limits))
	for mime := range limits {
		mimes = append(mimes, mime)
	}
	sort.Strings(mimes)

	fmt.Fprintf(c.out, "%s %s\n", c.paint(bold, fmt.Sprintf("%-32s", "default")), startup.FormatBytes(svc.DefaultSizeLimit()))
	for _, mime := range mimes {
		fmt.Fprintf(c.out, "%-32s %s\n", mime, startup.FormatBytes(limits[mime]))
	}
	return nil
}

func (c *cli) setLimit(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	n, err := startup.ParseBytes(args[1])
	if err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("size limit must be positive, got %q", args[1])
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if args[0] == "*" || args[0] == "default" {
		if err := c.db.SetDefaultSizeLimit(ctx, n); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Default size limit set to %s\n", startup.FormatBytes(n))
		return nil
	}

	mime := strings.ToLower(strings.TrimSpace(args[0]))
	if !strings.Contains(mime, "/") {
		return fmt.Errorf("invalid mime type %q", args[0])
	}
	if err := c.db.SetSizeLimit(ctx, mime, n); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Size limit for %s set to %s\n", mime, startup.FormatBytes(n))
	return nil
}

func (c *cli) settings(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	prefs, err := c.db.Previews(ctx)
	if err != nil {
		return err
	}
	for _, key := range database.PreviewKeys {
		state := c.paint(green, "on")
		if !prefs[key] {
			state = c.paint(red, "off")
		}
		fmt.Fprintf(c.out, "%-18s %s\n", key, state)
	}
	return nil
}

func (c *cli) setPreview(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	if !database.IsPreviewKey(args[0]) {
		return fmt.Errorf("unknown preview setting %q", args[0])
	}

	var enabled bool
	switch strings.ToLower(args[1]) {
	case "on", "true", "1", "yes":
		enabled = true
	case "off", "false", "0", "no":
	default:
		return fmt.Errorf("expected on or off, got %q", args[1])
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := c.db.SetPreview(ctx, args[0], enabled); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s set to %v\n", args[0], enabled)
	return nil
}
