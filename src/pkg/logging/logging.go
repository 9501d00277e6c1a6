// Package logging builds the zap.Logger every component of the storage
// core logs through, stamped with a per-process instance id so log lines
// from concurrent runs (or concurrent test processes) don't interleave
// into an ambiguous stream.
package logging

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// New builds a development logger (human-readable, debug level) if dev is
// true, otherwise a production logger (JSON, info level) — mirroring the
// two-mode split used for the server entrypoint's logger. Every line
// carries an "instance_id" field set to a fresh uuid, so lines from
// separate runs can be told apart when their output is merged.
func New(dev bool) (*zap.Logger, error) {
	var base *zap.Logger
	var err error
	if dev {
		base, err = zap.NewDevelopment()
	} else {
		base, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}

	return base.With(zap.String("instance_id", uuid.NewString())), nil
}
