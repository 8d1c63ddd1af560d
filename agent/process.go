package agent

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
)

const (
	// maxLineBuffer is the scanner buffer for large JSON lines (1MB)
	maxLineBuffer = 1024 * 1024

	// gracefulExitTimeout is how long to wait after SIGINT before SIGKILL
	gracefulExitTimeout = 5 * time.Second
)

// process owns one child and multiplexes its stdout into line events.
// Two modes: pipe (stdin/stdout pipes, JSON protocols) and pty (backends
// that require a terminal).
type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	tty   *os.File // set in pty mode; doubles as stdin

	lines  chan []byte
	exitCh chan int
	errCh  chan error
	done   chan struct{}

	writeMu      sync.Mutex
	wg           sync.WaitGroup
	closeOnce    sync.Once
	shuttingDown atomic.Bool
}

// startPipeProcess launches argv with stdin/stdout pipes and begins streaming
// stdout lines. Stderr is drained and logged at debug level.
func startPipeProcess(argv []string, cwd string, env []string) (*process, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrSpawnFailure, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawnFailure, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrSpawnFailure, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailure, err)
	}

	p := newProcess(cmd)
	p.stdin = stdin

	p.wg.Add(2)
	go p.readLines(stdout)
	go p.drainStderr(stderr)
	p.monitor()

	logger.Info().Int("pid", cmd.Process.Pid).Str("cwd", cwd).Str("binary", argv[0]).
		Msg("agent process started")
	return p, nil
}

// startPtyProcess launches argv under a pseudo-terminal. The pty file serves
// as both input and output; interrupt is delivered as a Ctrl+C keystroke.
func startPtyProcess(argv []string, cwd string, env []string) (*process, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.Env = env

	tty, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailure, err)
	}

	p := newProcess(cmd)
	p.tty = tty

	p.wg.Add(1)
	go p.readLines(tty)
	p.monitor()

	logger.Info().Int("pid", cmd.Process.Pid).Str("cwd", cwd).Str("binary", argv[0]).
		Msg("agent process started under pty")
	return p, nil
}

func newProcess(cmd *exec.Cmd) *process {
	return &process{
		cmd:    cmd,
		lines:  make(chan []byte, 100),
		exitCh: make(chan int, 1),
		errCh:  make(chan error, 10),
		done:   make(chan struct{}),
	}
}

// readLines streams newline-delimited output, splitting concatenated JSON
// objects that arrive on a single line.
func (p *process) readLines(r io.Reader) {
	defer p.wg.Done()

	scanner := bufio.NewScanner(r)
	buf := make([]byte, maxLineBuffer)
	scanner.Buffer(buf, maxLineBuffer)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		for _, obj := range splitConcatenatedJSON(line) {
			p.lines <- obj
		}
	}

	if err := scanner.Err(); err != nil && !p.shuttingDown.Load() {
		select {
		case p.errCh <- fmt.Errorf("stdout read error: %w", err):
		default:
		}
	}
}

func (p *process) drainStderr(r io.Reader) {
	defer p.wg.Done()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			logger.Debug().Str("stderr", line).Msg("agent stderr")
		}
	}
}

// monitor waits for process exit and closes the line channel
func (p *process) monitor() {
	go func() {
		err := p.cmd.Wait()
		exitCode := 0
		if p.cmd.ProcessState != nil {
			exitCode = p.cmd.ProcessState.ExitCode()
		}
		if err != nil && !p.shuttingDown.Load() {
			logger.Warn().Err(err).Int("exitCode", exitCode).Msg("agent process exited with error")
		}

		// Let readers drain before closing the line channel
		p.wg.Wait()
		close(p.lines)
		p.exitCh <- exitCode
		close(p.done)
	}()
}

// Write sends data to the process's input
func (p *process) Write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	w := io.Writer(p.stdin)
	if p.tty != nil {
		w = p.tty
	}
	if w == nil {
		return ErrProcessNotFound
	}
	_, err := w.Write(data)
	return err
}

// Interrupt delivers a best-effort stop signal: Ctrl+C on a pty, SIGINT on
// a pipe-mode process. No acknowledgment; observe exitCh for the outcome.
func (p *process) Interrupt() error {
	if p.tty != nil {
		_, err := p.tty.Write([]byte{0x03})
		return err
	}
	if p.cmd.Process == nil {
		return ErrProcessNotFound
	}
	return p.cmd.Process.Signal(syscall.SIGINT)
}

// Close terminates the process: SIGINT first (the CLIs handle it, SIGTERM
// is ignored by Node-based backends), SIGKILL after a grace period.
func (p *process) Close() {
	p.closeOnce.Do(func() {
		p.shuttingDown.Store(true)

		if p.stdin != nil {
			p.stdin.Close()
		}

		if p.cmd.Process != nil {
			if err := p.cmd.Process.Signal(syscall.SIGINT); err == nil {
				select {
				case <-p.done:
					// exited gracefully
				case <-time.After(gracefulExitTimeout):
					logger.Warn().Int("pid", p.cmd.Process.Pid).
						Msg("process didn't exit gracefully, sending SIGKILL")
					p.cmd.Process.Kill()
				}
			} else {
				p.cmd.Process.Kill()
			}
		}

		if p.tty != nil {
			p.tty.Close()
		}
	})
}

// splitConcatenatedJSON splits a byte slice containing concatenated JSON
// objects, e.g. `{"a":1}{"b":2}`. Non-JSON lines come back whole.
func splitConcatenatedJSON(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	var result [][]byte
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			break
		}
		obj := make([]byte, len(raw))
		copy(obj, raw)
		result = append(result, obj)
	}

	if result == nil {
		// Not JSON at all; deliver the raw line so the parser can wrap it
		line := make([]byte, len(data))
		copy(line, data)
		result = [][]byte{line}
	}
	return result
}
