// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/katalvlaran/scalebp/chain"
	"github.com/katalvlaran/scalebp/internal/config"
	"github.com/katalvlaran/scalebp/internal/telemetry"
	"github.com/katalvlaran/scalebp/schedule"
)

// session is a loaded model with its chain and observations.
type session struct {
	id       string
	model    *config.Model
	chain    *chain.Chain
	obs      chain.Observations
	shutdown func(context.Context) error
}

func openSession(cmd *cobra.Command) (*session, error) {
	m, err := config.Load(modelPath)
	if err != nil {
		return nil, err
	}
	s := &session{model: m, id: uuid.NewString()}
	logger = logger.With("run", s.id)

	opts := []chain.Option{chain.WithLogger(logger)}
	if emitTrace {
		tr, shutdown, err := telemetry.NewWriterTracer(cmd.ErrOrStderr())
		if err != nil {
			return nil, err
		}
		s.shutdown = shutdown
		opts = append(opts, chain.WithEngineOptions(schedule.WithTracer(tr)))
	}
	if s.chain, s.obs, err = m.Build(opts...); err != nil {
		return nil, s.close(cmd, err)
	}
	logger.Info("model loaded", "path", modelPath, "family", m.Family, "steps", m.Steps, "observed", len(s.obs))

	return s, nil
}

// close flushes spans and metrics; it returns err joined with its own errors.
func (s *session) close(cmd *cobra.Command, err error) error {
	if s.shutdown != nil {
		err = errors.Join(err, s.shutdown(cmd.Context()))
	}
	if emitMetrics {
		err = errors.Join(err, telemetry.WriteMetrics(cmd.ErrOrStderr(), prometheus.DefaultGatherer))
	}

	return err
}
