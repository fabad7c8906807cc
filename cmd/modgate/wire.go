//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"modgate/internal/conf"
	"modgate/internal/server"
)

// wireApp init kratos application.
func wireApp(*conf.Bootstrap, log.Logger) (*kratos.App, error) {
	panic(wire.Build(
		newOpenAIClient,
		newTextClassifier,
		newVisionClassifier,
		newTranscriber,
		newFetcher,
		newFFmpeg,
		newTextEvaluator,
		newImageEvaluator,
		newVideoAnalyzer,
		newModerationUsecase,
		newXPostUsecase,
		newModerationService,
		newRateLimiter,
		server.NewHTTPServer,
		newApp,
	))
}
