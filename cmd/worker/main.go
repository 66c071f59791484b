package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/geovault/geovault/internal/constants"
	"github.com/geovault/geovault/internal/engine"
	"github.com/geovault/geovault/internal/models"
	"github.com/geovault/geovault/internal/utils"
	"github.com/geovault/geovault/pkg/encryption"
)

func main() {
	policyFlag := flag.String("policy", "", "verification policy: quorum or any")
	poolWorkers := flag.Int("pool-workers", 4, "number of workers for history decryption")
	flag.Parse()

	// stdout carries the wire protocol exclusively; all logging goes to stderr.
	logger := zerolog.New(os.Stderr).With().
		Timestamp().
		Str("component", "worker").
		Logger()

	policy, err := engine.ParsePolicy(*policyFlag)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid verification policy")
	}

	crypto, err := encryption.NewManager()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize encryption manager")
	}

	pool := utils.NewWorkerPool(*poolWorkers)
	defer pool.Shutdown()

	eng := engine.New(crypto, policy, pool, logger)
	dispatcher := engine.NewDispatcher(eng, logger)

	logger.Info().
		Str("policy", string(policy)).
		Int("pool_workers", *poolWorkers).
		Msg("Worker started")

	out := bufio.NewWriter(os.Stdout)
	fmt.Fprintln(out, constants.BannerPrefix+constants.ProtocolVersion)
	fmt.Fprintln(out, constants.PromptMarker)
	out.Flush()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		response, quit := execute(dispatcher, line)

		data, err := json.Marshal(response)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to encode response")
			data = []byte(`{"Message":{"success":false,"message":"internal encoding failure"}}`)
		}
		out.Write(data)
		out.WriteByte('\n')
		fmt.Fprintln(out, constants.PromptMarker)
		out.Flush()

		if quit {
			logger.Info().Msg("Worker exiting on request")
			return
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Error().Err(err).Msg("Failed to read command stream")
		os.Exit(1)
	}
	// stdin closed: the supervisor is gone, so terminate.
	logger.Info().Msg("Command stream closed, worker exiting")
}

// execute parses and dispatches one wire line. Malformed lines produce a
// Message response rather than terminating the worker.
func execute(dispatcher *engine.Dispatcher, line string) (models.Response, bool) {
	var cmd models.Command
	if err := json.Unmarshal([]byte(line), &cmd); err != nil {
		return models.Response{Tag: models.RespMessage, Body: models.MessagePayload{
			Success: false,
			Message: "Malformed command: " + err.Error(),
		}}, false
	}
	return dispatcher.Dispatch(cmd)
}
