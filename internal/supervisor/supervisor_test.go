package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geovault/geovault/internal/models"
)

// fakeWorker writes a shell script that speaks the wire protocol and returns
// a supervisor configured against it.
func fakeWorker(t *testing.T, script string) Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return Config{
		Binary:         "/bin/sh",
		Args:           []string{path},
		WarmupDelay:    10 * time.Millisecond,
		ReadTimeout:    100 * time.Millisecond,
		MaxReadRetries: 5,
	}
}

const echoWorker = `#!/bin/sh
echo "geovault-worker/1.2.0"
echo "> "
while read line; do
  echo '{"Message":{"success":true,"message":"ok"}}'
  echo "> "
done
`

func TestSupervisorStartAndExchange(t *testing.T) {
	sup, err := New(fakeWorker(t, echoWorker), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, sup.Start())
	assert.Equal(t, StateReady, sup.State())

	resp, err := sup.Exchange(context.Background(), models.Command{Tag: models.CmdHelp})
	require.NoError(t, err)
	assert.Equal(t, models.RespMessage, resp.Tag)
	assert.Equal(t, StateReady, sup.State())

	// A second exchange reuses the running process.
	_, err = sup.Exchange(context.Background(), models.Command{Tag: models.CmdHelp})
	require.NoError(t, err)

	require.NoError(t, sup.Stop())
	assert.Equal(t, StateTerminated, sup.State())

	_, err = sup.Exchange(context.Background(), models.Command{Tag: models.CmdHelp})
	assert.ErrorIs(t, err, ErrChannel)
}

func TestSupervisorSplitResponseReassembly(t *testing.T) {
	// The response JSON arrives across two lines; framing accumulates until
	// the document validates.
	script := `#!/bin/sh
echo "geovault-worker/1.2.0"
echo "> "
while read line; do
  echo '{"Message":{"success":true,'
  echo '"message":"split"}}'
  echo "> "
done
`
	sup, err := New(fakeWorker(t, script), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, sup.Start())
	defer sup.Stop()

	resp, err := sup.Exchange(context.Background(), models.Command{Tag: models.CmdHelp})
	require.NoError(t, err)

	var payload models.MessagePayload
	require.NoError(t, resp.Decode(&payload))
	assert.Equal(t, "split", payload.Message)
}

func TestSupervisorHangDetection(t *testing.T) {
	// Banner and prompt appear, then the worker swallows commands forever.
	script := `#!/bin/sh
echo "geovault-worker/1.2.0"
echo "> "
while read line; do
  :
done
`
	sup, err := New(fakeWorker(t, script), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, sup.Start())
	defer sup.Stop()

	_, err = sup.Exchange(context.Background(), models.Command{Tag: models.CmdHelp})
	assert.ErrorIs(t, err, ErrWorkerHung)

	// The hang killed and respawned the worker; the supervisor is usable.
	assert.Equal(t, StateReady, sup.State())
}

func TestSupervisorGarbageBeforePrompt(t *testing.T) {
	// Non-JSON output terminated by a prompt can never frame into a
	// response: channel failure, not a hang.
	script := `#!/bin/sh
echo "geovault-worker/1.2.0"
echo "> "
while read line; do
  echo 'this is not json'
  echo "> "
done
`
	sup, err := New(fakeWorker(t, script), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, sup.Start())
	defer sup.Stop()

	_, err = sup.Exchange(context.Background(), models.Command{Tag: models.CmdHelp})
	assert.ErrorIs(t, err, ErrChannel)
	assert.NotErrorIs(t, err, ErrWorkerHung)
}

func TestSupervisorVersionCheck(t *testing.T) {
	script := `#!/bin/sh
echo "geovault-worker/2.0.0"
echo "> "
cat > /dev/null
`
	cfg := fakeWorker(t, script)
	cfg.VersionConstraint = "^1"

	sup, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)

	err = sup.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside supported range")
}

func TestSupervisorBannerWithoutVersion(t *testing.T) {
	// A banner that is the bare prefix must fail startup cleanly, not crash.
	script := `#!/bin/sh
echo "geovault-worker/"
echo "> "
cat > /dev/null
`
	sup, err := New(fakeWorker(t, script), zerolog.Nop())
	require.NoError(t, err)

	err = sup.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no version")
}

func TestSupervisorPromptBeforeBanner(t *testing.T) {
	script := `#!/bin/sh
echo "> "
cat > /dev/null
`
	sup, err := New(fakeWorker(t, script), zerolog.Nop())
	require.NoError(t, err)

	err = sup.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before version banner")
}

func TestSupervisorWorkerExitDuringExchange(t *testing.T) {
	// The worker dies after reading a command; the exchange reports a
	// channel failure and the worker is respawned for the next caller.
	script := `#!/bin/sh
echo "geovault-worker/1.2.0"
echo "> "
read line
exit 0
`
	sup, err := New(fakeWorker(t, script), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, sup.Start())
	defer sup.Stop()

	_, err = sup.Exchange(context.Background(), models.Command{Tag: models.CmdHelp})
	assert.ErrorIs(t, err, ErrChannel)

	// Respawned: the next exchange works against the fresh process.
	assert.Equal(t, StateReady, sup.State())
}

func TestNewRejectsMissingBinary(t *testing.T) {
	_, err := New(Config{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewRejectsBadConstraint(t *testing.T) {
	_, err := New(Config{Binary: "/bin/true", VersionConstraint: "not-a-range"}, zerolog.Nop())
	assert.Error(t, err)
}
