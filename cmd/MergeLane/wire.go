//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"MergeLane/internal/biz"
	"MergeLane/internal/conf"
	"MergeLane/internal/data"
	"MergeLane/internal/server"
	"MergeLane/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.GitHub, *conf.Engine, *conf.Audit, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		NewAuditRetention,
		newApp,
	))
}
