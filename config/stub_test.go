package config

import (
	"context"

	"github.com/jpalmerr/gpiolive"
)

type stubSource struct{}

func (stubSource) Sample(context.Context, int) (gpiolive.Sample, error) {
	return gpiolive.Sample{Digital: gpiolive.Int(0)}, nil
}

func (stubSource) SystemInfo(context.Context) (map[string]any, error) {
	return nil, nil
}
