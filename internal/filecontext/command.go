package filecontext

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"

	"github.com/trustgraph-ai/gambiarra/internal/protocol"
)

// safeEnvVars is the minimal passthrough environment for a spawned command,
// mirroring ExecuteCommandTool._get_safe_environment's deny-by-default list.
var safeEnvVars = []string{"PATH", "HOME", "USER", "SHELL", "TERM", "LANG"}
var passthroughEnvVars = []string{"PYTHON_PATH", "NODE_PATH", "JAVA_HOME", "CARGO_HOME"}

func safeEnvironment() []string {
	var env []string
	for _, key := range safeEnvVars {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	for _, key := range passthroughEnvVars {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	return env
}

// lineCollector accumulates streamed output lines under a mutex, since
// stdout and stderr are drained on separate goroutines.
type lineCollector struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (c *lineCollector) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.WriteString(line)
	c.buf.WriteByte('\n')
}

func (c *lineCollector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// executeCommand implements execute_command, grounded on
// ExecuteCommandTool.execute/_execute_with_streaming: it validates the
// command against the command sandbox, runs it under a timeout with the
// restricted environment, and streams each output line to e.Stream as it
// arrives.
func (e *Executor) executeCommand(ctx context.Context, params map[string]any) protocol.ResultBody {
	command, ok := stringParam(params, "command")
	if !ok || command == "" {
		return errorResult(protocol.CodeCommandError, "command is required", nil)
	}
	if !e.Commands.IsAllowed(command) {
		return errorResult(protocol.CodeSecurityError,
			"command blocked by security policy: "+command, map[string]any{"command": command})
	}

	cwd, hasCwd := stringParam(params, "cwd")
	if !hasCwd || cwd == "" {
		cwd = "."
	}
	resolvedCwd, err := e.Paths.Validate(cwd)
	if err != nil {
		return sandboxError(err, cwd)
	}
	if info, statErr := os.Stat(resolvedCwd); statErr != nil || !info.IsDir() {
		return errorResult(protocol.CodeDirectoryNotFound,
			"Working directory '"+cwd+"' does not exist", map[string]any{"cwd": cwd})
	}

	timeout := e.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if t, ok := intParam(params, "timeout"); ok && t > 0 {
		timeout = time.Duration(t) * time.Second
	}

	parts, err := shlex.Split(command)
	if err != nil || len(parts) == 0 {
		return errorResult(protocol.CodeCommandError, "could not parse command: "+command, map[string]any{"command": command})
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, parts[0], parts[1:]...)
	cmd.Dir = resolvedCwd
	cmd.Env = safeEnvironment()

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return errorResult(protocol.CodeCommandError, err.Error(), map[string]any{"command": command})
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return errorResult(protocol.CodeCommandError, err.Error(), map[string]any{"command": command})
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return errorResult(protocol.CodeCommandError, "command not found: "+parts[0], map[string]any{"command": command})
	}

	var stdout, stderr lineCollector
	var wg sync.WaitGroup
	wg.Add(2)
	go e.streamLines(stdoutPipe, "stdout", &stdout, &wg)
	go e.streamLines(stderrPipe, "stderr", &stderr, &wg)
	wg.Wait()

	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return errorResult(protocol.CodeCommandTimeout,
			"command timed out after "+timeout.String(), map[string]any{"command": command, "timeout": timeout.Seconds()})
	}

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return errorResult(protocol.CodeCommandError, waitErr.Error(), map[string]any{"command": command, "cwd": cwd})
		}
	}

	return successResult(encodeData(map[string]any{
		"stdout":         stdout.String(),
		"stderr":         stderr.String(),
		"exit_code":      exitCode,
		"execution_time": elapsed.Seconds(),
	}), map[string]any{
		"command": command,
		"cwd":     resolvedCwd,
		"timeout": timeout.Seconds(),
	})
}

func (e *Executor) streamLines(r io.Reader, stream string, into *lineCollector, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		into.add(line)
		if e.Stream != nil {
			e.Stream(stream, line)
		}
	}
}
