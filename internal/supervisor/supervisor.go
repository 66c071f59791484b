// Package supervisor owns the isolated worker process: it spawns and
// restarts it, frames its line-oriented stdout into complete JSON responses,
// detects hangs and serializes concurrent access to the single
// request/response channel.
package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"

	"github.com/geovault/geovault/internal/constants"
	"github.com/geovault/geovault/internal/models"
)

// State is the supervisor's view of the worker process lifecycle.
type State int32

const (
	StateNotStarted State = iota
	StateStarting
	StateReady
	StateBusy
	StateHung
	StateRestarting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateHung:
		return "hung"
	case StateRestarting:
		return "restarting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

var (
	// ErrWorkerHung is returned when the worker produced no output within
	// the retry budget. The process has been killed and respawned; the
	// request is safe to retry.
	ErrWorkerHung = errors.New("worker unresponsive, restarted; retry the request")

	// ErrChannel covers pipe failures, unexpected process exit and
	// unparseable responses. Retryable from the caller's point of view.
	ErrChannel = errors.New("worker channel failure")

	errReadTimeout = errors.New("no line within read timeout")
	errPipeClosed  = errors.New("worker stdout closed")
)

// Config controls process spawning and exchange framing.
type Config struct {
	Binary            string
	Args              []string
	WarmupDelay       time.Duration
	ReadTimeout       time.Duration
	MaxReadRetries    int
	VersionConstraint string
}

func (c *Config) applyDefaults() {
	if c.WarmupDelay == 0 {
		c.WarmupDelay = constants.DefaultWarmupDelay
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = constants.DefaultReadTimeout
	}
	if c.MaxReadRetries == 0 {
		c.MaxReadRetries = constants.DefaultMaxReadRetries
	}
	if c.VersionConstraint == "" {
		c.VersionConstraint = constants.ProtocolVersionConstraint
	}
}

// Supervisor guards the process handle, stdin writer and stdout reader as one
// unit behind a single lock: only one exchange is in flight at a time, and
// concurrent callers queue on the lock.
type Supervisor struct {
	mu         sync.Mutex
	state      State
	cfg        Config
	constraint *semver.Constraints
	logger     zerolog.Logger

	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string
	done  chan struct{}
}

// New builds a supervisor. The worker is not spawned until Start or the first
// Exchange.
func New(cfg Config, logger zerolog.Logger) (*Supervisor, error) {
	cfg.applyDefaults()
	if cfg.Binary == "" {
		return nil, errors.New("worker binary path is required")
	}
	constraint, err := semver.NewConstraint(cfg.VersionConstraint)
	if err != nil {
		return nil, fmt.Errorf("invalid worker version constraint %q: %w", cfg.VersionConstraint, err)
	}
	return &Supervisor{
		state:      StateNotStarted,
		cfg:        cfg,
		constraint: constraint,
		logger:     logger,
	}, nil
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition is the single place state changes happen.
func (s *Supervisor) transition(to State) {
	if s.state == to {
		return
	}
	s.logger.Debug().
		Str("from", s.state.String()).
		Str("to", to.String()).
		Msg("Worker state transition")
	s.state = to
}

// Start spawns the worker eagerly so the first request does not pay the
// warm-up delay.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureRunning()
}

// Stop asks the worker to exit and terminates it. The supervisor cannot be
// reused afterwards.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processAlive() {
		// Best effort clean shutdown; Exit makes the worker terminate
		// on its own.
		if raw, err := json.Marshal(models.Command{Tag: models.CmdExit}); err == nil {
			_, _ = fmt.Fprintln(s.stdin, string(raw))
		}
		select {
		case <-s.done:
		case <-time.After(s.cfg.ReadTimeout):
			s.kill()
		}
	}
	s.transition(StateTerminated)
	return nil
}

// Exchange writes one command line and reads lines until a complete JSON
// response arrives. On a hang the worker is killed and respawned and
// ErrWorkerHung is returned; there is no mid-flight cancellation of an
// exchange once started.
func (s *Supervisor) Exchange(ctx context.Context, cmd models.Command) (models.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureRunning(); err != nil {
		return models.Response{}, fmt.Errorf("%w: %v", ErrChannel, err)
	}
	s.transition(StateBusy)

	raw, err := json.Marshal(cmd)
	if err != nil {
		s.transition(StateReady)
		return models.Response{}, fmt.Errorf("%w: failed to encode command: %v", ErrChannel, err)
	}

	s.logger.Debug().Str("tag", cmd.Tag).Msg("Sending command to worker")
	if _, err := fmt.Fprintln(s.stdin, string(raw)); err != nil {
		s.restart("stdin write failed")
		return models.Response{}, fmt.Errorf("%w: write failed: %v", ErrChannel, err)
	}

	response, err := s.readResponse(ctx)
	if err != nil {
		return models.Response{}, err
	}
	s.transition(StateReady)
	return response, nil
}

// readResponse frames stdout lines into one JSON document. The primary
// framing is one complete JSON object (possibly spread over lines, validated
// with json.Valid); the prompt marker is a fallback terminator for
// interactive sessions.
func (s *Supervisor) readResponse(ctx context.Context) (models.Response, error) {
	var buf bytes.Buffer
	retries := 0

	for retries < s.cfg.MaxReadRetries {
		if err := ctx.Err(); err != nil {
			s.restart("context cancelled mid-exchange")
			return models.Response{}, fmt.Errorf("%w: %v", ErrChannel, err)
		}

		line, err := s.readLine(s.cfg.ReadTimeout)
		if errors.Is(err, errPipeClosed) {
			s.restart("worker exited mid-exchange")
			return models.Response{}, fmt.Errorf("%w: worker exited", ErrChannel)
		}
		if errors.Is(err, errReadTimeout) {
			retries++
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == strings.TrimSpace(constants.PromptMarker) {
			if buf.Len() == 0 {
				continue
			}
			// Prompt after partial output: the response will never
			// complete.
			s.restart("unparseable response before prompt")
			return models.Response{}, fmt.Errorf("%w: incomplete response before prompt", ErrChannel)
		}
		if trimmed == "" {
			continue
		}

		buf.WriteString(line)
		if !json.Valid(buf.Bytes()) {
			continue
		}
		var response models.Response
		if err := json.Unmarshal(buf.Bytes(), &response); err != nil {
			s.restart("malformed response envelope")
			return models.Response{}, fmt.Errorf("%w: %v", ErrChannel, err)
		}
		return response, nil
	}

	s.transition(StateHung)
	s.logger.Error().
		Int("retries", retries).
		Msg("Worker produced no response, restarting")
	s.restart("hang detected")
	return models.Response{}, ErrWorkerHung
}

// ensureRunning spawns the worker if it is absent or has exited.
func (s *Supervisor) ensureRunning() error {
	if s.state == StateTerminated {
		return errors.New("supervisor is stopped")
	}
	if s.processAlive() && (s.state == StateReady || s.state == StateBusy) {
		s.transition(StateReady)
		return nil
	}
	return s.spawn()
}

// spawn starts the worker, waits through warm-up, and consumes the startup
// banner up to the first prompt, validating the advertised protocol version.
func (s *Supervisor) spawn() error {
	s.transition(StateStarting)
	s.logger.Info().Str("binary", s.cfg.Binary).Msg("Spawning worker process")

	cmd := exec.Command(s.cfg.Binary, s.cfg.Args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.lines = make(chan string, 64)
	s.done = make(chan struct{})

	go s.readLines(stdout, s.lines)
	done := s.done
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	// The worker needs a moment before its banner appears.
	time.Sleep(s.cfg.WarmupDelay)

	if err := s.awaitBanner(); err != nil {
		s.kill()
		s.transition(StateNotStarted)
		return err
	}
	s.transition(StateReady)
	return nil
}

// awaitBanner reads startup output until the first prompt, checking the
// version advertised in the banner line.
func (s *Supervisor) awaitBanner() error {
	versionSeen := false
	for attempt := 0; attempt < s.cfg.MaxReadRetries; attempt++ {
		line, err := s.readLine(s.cfg.ReadTimeout)
		if errors.Is(err, errPipeClosed) {
			return fmt.Errorf("worker exited during startup")
		}
		if errors.Is(err, errReadTimeout) {
			continue
		}

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, constants.BannerPrefix) {
			fields := strings.Fields(strings.TrimPrefix(trimmed, constants.BannerPrefix))
			if len(fields) == 0 {
				return errors.New("worker banner carries no version")
			}
			if err := s.checkVersion(fields[0]); err != nil {
				return err
			}
			versionSeen = true
			continue
		}
		if trimmed == strings.TrimSpace(constants.PromptMarker) {
			if !versionSeen {
				return errors.New("worker prompt appeared before version banner")
			}
			return nil
		}
		s.logger.Debug().Str("line", trimmed).Msg("Worker startup output")
	}
	return errors.New("worker did not become ready in time")
}

func (s *Supervisor) checkVersion(version string) error {
	parsed, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("worker reported unparseable version %q: %w", version, err)
	}
	if !s.constraint.Check(parsed) {
		return fmt.Errorf("worker version %s outside supported range %s", version, s.cfg.VersionConstraint)
	}
	s.logger.Info().Str("version", version).Msg("Worker protocol version accepted")
	return nil
}

// restart kills the worker and spawns a replacement immediately so the next
// caller finds a warm process. Failure to respawn is deferred to the next
// exchange.
func (s *Supervisor) restart(reason string) {
	s.logger.Warn().Str("reason", reason).Msg("Restarting worker process")
	s.kill()
	s.transition(StateRestarting)
	if err := s.spawn(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to respawn worker")
		s.transition(StateNotStarted)
	}
}

func (s *Supervisor) kill() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.done != nil {
		<-s.done
	}
	s.cmd = nil
	s.stdin = nil
}

func (s *Supervisor) processAlive() bool {
	if s.cmd == nil || s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// readLine waits for one stdout line with a timeout.
func (s *Supervisor) readLine(timeout time.Duration) (string, error) {
	select {
	case line, ok := <-s.lines:
		if !ok {
			return "", errPipeClosed
		}
		return line, nil
	case <-time.After(timeout):
		return "", errReadTimeout
	}
}

// readLines pumps worker stdout into the line channel. Responses can be
// large (heatmaps), so the scanner buffer is generous.
func (s *Supervisor) readLines(stdout io.Reader, lines chan<- string) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	close(lines)
}
