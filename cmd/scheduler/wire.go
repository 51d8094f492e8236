//go:build wireinject
// +build wireinject

package main

//go:generate go run -mod=mod github.com/google/wire/cmd/wire

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/promptops/scheduler/internal/api"
	"github.com/promptops/scheduler/internal/biz/task"
	"github.com/promptops/scheduler/internal/infra/persistence/commonrepo"
	"github.com/promptops/scheduler/internal/infra/persistence/executionrepo"
	"github.com/promptops/scheduler/internal/infra/persistence/taskrepo"
	"github.com/promptops/scheduler/internal/scheduler"
	"github.com/promptops/scheduler/pkg/config"
)

func InitializeApp(logger *zap.Logger, cfg *config.Config, db commonrepo.DB) (*App, error) {
	wire.Build(
		NewApp,

		ProvideEnforcer,
		ProvideTimerQueue,
		ProvideExecutionUsecase,
		ProvideRunner,
		ProvideConversationStore,
		ProvideNotifier,
		ProvideCoordinator,
		ProvideEngine,

		wire.Bind(new(task.JobQueue), new(*scheduler.TimerQueue)),

		// http api providers
		api.Provider,

		// biz providers
		task.Provider,

		// infra providers
		taskrepo.Provider,
		executionrepo.Provider,
	)
	return nil, nil
}
