package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"thumbnailer/internal/logging"
	"thumbnailer/internal/mediatypes"
	"thumbnailer/internal/metrics"
)

// toolManifest is the JSON file that sits next to a tool executable.
type toolManifest struct {
	Keys []string `json:"Keys"`
}

// ToolRegistry maps mime keys to external thumbnail tools. Keys are exact
// mime names or "major/*" wildcards. The registry is built once, on first
// use, by scanning <root>/thumbnail/*.json under every root.
type ToolRegistry struct {
	roots []string

	// OnLoad, when set, is called once with the number of registered keys
	// after the first scan.
	OnLoad func(keys int)

	once  sync.Once
	tools map[string]string
}

// NewToolRegistry returns a registry over the given roots. Nothing is read
// until the first lookup.
func NewToolRegistry(roots []string) *ToolRegistry {
	return &ToolRegistry{roots: roots}
}

func (r *ToolRegistry) load() {
	r.once.Do(func() {
		r.tools = make(map[string]string)
		for _, root := range r.roots {
			r.scan(filepath.Join(root, "thumbnail"))
		}
		metrics.ToolsRegistered.Set(float64(len(r.tools)))
		logging.Debug("Tool registry loaded: %d keys from %d roots", len(r.tools), len(r.roots))
		if r.OnLoad != nil {
			r.OnLoad(len(r.tools))
		}
	})
}

func (r *ToolRegistry) scan(dir string) {
	manifests, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return
	}
	sort.Strings(manifests)

	for _, manifest := range manifests {
		info, err := os.Stat(manifest)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		data, err := os.ReadFile(manifest)
		if err != nil {
			logging.Debug("Skipping unreadable tool manifest %s: %v", manifest, err)
			continue
		}

		var m toolManifest
		if err := json.Unmarshal(data, &m); err != nil {
			logging.Warn("Skipping invalid tool manifest %s: %v", manifest, err)
			continue
		}

		tool := strings.TrimSuffix(manifest, filepath.Ext(manifest))
		info, err = os.Stat(tool)
		if err != nil {
			logging.Debug("Tool %s listed by %s does not exist", tool, manifest)
			continue
		}
		if !info.Mode().IsRegular() {
			logging.Debug("Tool %s listed by %s is not a regular file", tool, manifest)
			continue
		}

		for _, key := range m.Keys {
			if _, taken := r.tools[key]; taken {
				continue
			}
			r.tools[key] = tool
		}
	}
}

// Lookup returns the tool for mime, trying the exact name before the
// "major/*" wildcard.
func (r *ToolRegistry) Lookup(mime string) (string, bool) {
	r.load()

	if tool, ok := r.tools[mime]; ok {
		return tool, true
	}
	tool, ok := r.tools[mediatypes.GeneralKey(mime)]
	return tool, ok
}

// Len returns the number of registered keys.
func (r *ToolRegistry) Len() int {
	r.load()
	return len(r.tools)
}

// ToolResult is what a tool produced: the decoded PNG bytes on success and
// the stderr text either way.
type ToolResult struct {
	PNG     []byte
	Message string
}

// ToolRunner invokes thumbnail tools as `tool <size> <path>`. A tool exits 0
// and prints a base64 PNG on stdout, or exits non-zero with a reason on
// stderr.
type ToolRunner struct {
	Timeout time.Duration
}

// Run executes tool for path. Failures are returned as *ToolError.
func (r *ToolRunner) Run(ctx context.Context, tool string, bound int, path string) (ToolResult, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, tool, strconv.Itoa(bound), path)
	// Children that inherited stdout must not hold Run open after a kill.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	metrics.ToolRunDuration.Observe(time.Since(start).Seconds())

	result := ToolResult{Message: strings.TrimSpace(stderr.String())}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			metrics.ToolRunsTotal.WithLabelValues("timeout").Inc()
			return result, &ToolError{Tool: tool, Message: fmt.Sprintf("thumbnail tool %q timed out", tool), Err: ctx.Err()}
		case ctx.Err() != nil:
			metrics.ToolRunsTotal.WithLabelValues("canceled").Inc()
			return result, &ToolError{Tool: tool, Message: fmt.Sprintf("thumbnail tool %q was canceled", tool), Err: ctx.Err()}
		case errors.As(err, &exitErr):
			metrics.ToolRunsTotal.WithLabelValues("exit_error").Inc()
			msg := result.Message
			if msg == "" {
				msg = fmt.Sprintf("get thumbnail failed from the %q application", tool)
			}
			return result, &ToolError{Tool: tool, Message: msg, Err: err}
		default:
			metrics.ToolRunsTotal.WithLabelValues("start_error").Inc()
			return result, &ToolError{Tool: tool, Message: err.Error(), Err: err}
		}
	}

	data, err := decodeBase64(stdout.Bytes())
	if err != nil || len(data) == 0 {
		metrics.ToolRunsTotal.WithLabelValues("bad_output").Inc()
		return result, &ToolError{Tool: tool, Message: fmt.Sprintf("load png image failed from the %q application", tool), Err: err}
	}

	metrics.ToolRunsTotal.WithLabelValues("success").Inc()
	result.PNG = data
	return result, nil
}

// decodeBase64 accepts padded or unpadded output with embedded whitespace.
func decodeBase64(out []byte) ([]byte, error) {
	clean := strings.Join(strings.Fields(string(out)), "")
	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(clean, "="))
	}
	return data, err
}

// Fallback handles mimes the built-in renderers do not: first the generic
// provider, then an external tool from the registry.
type Fallback struct {
	Provider Provider
	Tools    *ToolRegistry
	Runner   *ToolRunner
}

// Render asks the provider, then the registered tool for the mime.
func (f *Fallback) Render(ctx context.Context, path string, m mediatypes.MIME, bound int) Result {
	var providerErr error
	if f.Provider != nil && f.Provider.Supports(m.Name) {
		img, err := f.Provider.Thumbnail(ctx, path, bound)
		if err == nil {
			return Result{Image: img}
		}
		logging.Debug("Provider failed for %s: %v, trying external tools", path, err)
		providerErr = err
	}

	if f.Tools == nil {
		return failed(noSupportError(m.Name, providerErr))
	}

	tool, ok := f.Tools.Lookup(m.Name)
	if !ok {
		return failed(noSupportError(m.Name, providerErr))
	}

	runner := f.Runner
	if runner == nil {
		runner = &ToolRunner{}
	}

	res, err := runner.Run(ctx, tool, bound, path)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			toolErr.Mime = m.Name
		}
		return failed(err)
	}

	img, err := png.Decode(bytes.NewReader(res.PNG))
	if err != nil {
		return failed(&ToolError{
			Mime:    m.Name,
			Tool:    tool,
			Message: fmt.Sprintf("load png image failed from the %q application", tool),
			Err:     err,
		})
	}

	return Result{Image: shrinkToFit(img, bound)}
}
