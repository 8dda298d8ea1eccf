package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultTimeout = 2 * time.Minute

	// waitDelay bounds how long Run waits for output pipes after the worker
	// has been killed.
	waitDelay = 2 * time.Second

	stderrTail = 512
)

// Binding is the command that serves one provider.
type Binding struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type BridgeConfig struct {
	// Default serves every provider without an entry in Bindings.
	Default  Binding
	Bindings map[string]Binding
	Timeout  time.Duration
	// EnvFile holds provider credentials in dotenv format. They are passed
	// to the worker process only.
	EnvFile string
	Env     map[string]string
}

// ProcessBridge runs one worker process per request.
type ProcessBridge struct {
	def      Binding
	bindings map[string]Binding
	timeout  time.Duration
	env      []string
	logger   *slog.Logger
}

func NewProcessBridge(cfg BridgeConfig, logger *slog.Logger) (*ProcessBridge, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	vars := make(map[string]string)
	if cfg.EnvFile != "" {
		fileVars, err := godotenv.Read(cfg.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("reading worker env file: %w", err)
		}
		for k, v := range fileVars {
			vars[k] = v
		}
	}
	for k, v := range cfg.Env {
		vars[k] = v
	}

	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &ProcessBridge{
		def:      cfg.Default,
		bindings: cfg.Bindings,
		timeout:  timeout,
		env:      env,
		logger:   logger,
	}, nil
}

func (b *ProcessBridge) binding(provider string) (Binding, error) {
	if bnd, ok := b.bindings[provider]; ok && bnd.Command != "" {
		return bnd, nil
	}
	if b.def.Command != "" {
		return b.def, nil
	}
	return Binding{}, fmt.Errorf("%w: %q", ErrNoBinding, provider)
}

// Summarize runs the worker bound to req.Provider. On timeout the worker's
// whole process group is killed and reaped before KindTimeout is returned.
// Cancellation of ctx itself is returned as ctx.Err().
func (b *ProcessBridge) Summarize(ctx context.Context, req Request) (string, error) {
	bnd, err := b.binding(req.Provider)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(callCtx, bnd.Command, bnd.Args...)
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), b.env...)
	cmd.WaitDelay = waitDelay
	killProcessGroupOnCancel(cmd)

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", &Error{Kind: KindTimeout, Msg: fmt.Sprintf("no response after %s", b.timeout)}
	}

	resp, parseErr := parseResponse(stdout.Bytes())

	if runErr != nil {
		// A well-formed error response explains the exit better than the code.
		if parseErr == nil && resp.Error != nil {
			return "", &Error{Kind: KindProviderRejected, Msg: *resp.Error}
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return "", &Error{
				Kind: KindProcessFailure,
				Msg:  fmt.Sprintf("exit code %d: %s", exitErr.ExitCode(), tail(stderr.String())),
			}
		}
		return "", &Error{Kind: KindProcessFailure, Err: runErr}
	}

	if parseErr != nil {
		return "", &Error{Kind: KindProtocolViolation, Err: parseErr}
	}
	if resp.Error != nil {
		return "", &Error{Kind: KindProviderRejected, Msg: *resp.Error}
	}

	b.logger.Debug("worker responded",
		"article_id", req.ArticleID,
		"provider", req.Provider,
		"model", resp.Model,
		"elapsed", elapsed,
	)
	return *resp.Summary, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = "..." + s[len(s)-stderrTail:]
	}
	if s == "" {
		return "no stderr output"
	}
	return s
}
