//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/relaydesk/relaydesk/internal/configs"
)

func CreateApplication(ctx context.Context, cfg *configs.Config) (*Application, error) {
	wire.Build(newApplication)
	return nil, nil
}
