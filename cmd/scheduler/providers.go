package main

import (
	"go.uber.org/zap"

	"github.com/promptops/scheduler/internal/api"
	"github.com/promptops/scheduler/internal/biz/execution"
	"github.com/promptops/scheduler/internal/biz/task"
	"github.com/promptops/scheduler/internal/limits"
	"github.com/promptops/scheduler/internal/scheduler"
	"github.com/promptops/scheduler/pkg/config"
)

// App bundles everything main needs to run and shut down.
type App struct {
	Server *api.Server
	Engine *scheduler.Engine
	Queue  *scheduler.TimerQueue
}

func NewApp(server *api.Server, engine *scheduler.Engine, queue *scheduler.TimerQueue) *App {
	return &App{
		Server: server,
		Engine: engine,
		Queue:  queue,
	}
}

func ProvideEnforcer(cfg *config.Config) *limits.Enforcer {
	return limits.NewEnforcer(limits.Quotas{
		MaxDailyTasks:  cfg.Limits.MaxDailyTasks,
		MaxWeeklyTasks: cfg.Limits.MaxWeeklyTasks,
		MaxTotalTasks:  cfg.Limits.MaxTotalTasks,
	})
}

func ProvideTimerQueue(logger *zap.Logger) *scheduler.TimerQueue {
	return scheduler.NewTimerQueue(logger)
}

func ProvideExecutionUsecase(repo execution.Repo, cfg *config.Config, logger *zap.Logger) *execution.Usecase {
	return execution.NewUsecase(repo, cfg.Engine.HistoryKeep, logger)
}

func ProvideRunner(cfg *config.Config, logger *zap.Logger) scheduler.Runner {
	return scheduler.NewHTTPRunner(cfg.Runner.Endpoint, cfg.Runner.Timeout, logger)
}

func ProvideConversationStore(cfg *config.Config) scheduler.ConversationStore {
	return scheduler.NewHTTPConversationStore(cfg.Conversation.Endpoint, cfg.Conversation.Timeout)
}

func ProvideNotifier(cfg *config.Config, logger *zap.Logger) scheduler.Notifier {
	if !cfg.Notifier.Enabled {
		return scheduler.NopNotifier{}
	}
	return scheduler.NewHTTPNotifier(cfg.Notifier.Endpoint, cfg.Notifier.Timeout, logger)
}

func ProvideCoordinator(
	tasks *task.Usecase,
	taskRepo task.Repo,
	history *execution.Usecase,
	queue task.JobQueue,
	runner scheduler.Runner,
	conversations scheduler.ConversationStore,
	notifier scheduler.Notifier,
	logger *zap.Logger,
	cfg *config.Config,
) *scheduler.Coordinator {
	return scheduler.NewCoordinator(
		tasks, taskRepo, history, queue,
		runner, conversations, notifier, logger,
		cfg.Runner.Timeout, cfg.Engine.SummaryMaxRunes,
	)
}

func ProvideEngine(
	taskRepo task.Repo,
	tasks *task.Usecase,
	history *execution.Usecase,
	queue *scheduler.TimerQueue,
	coordinator *scheduler.Coordinator,
	logger *zap.Logger,
	cfg *config.Config,
) *scheduler.Engine {
	return scheduler.NewEngine(
		taskRepo, tasks, history, queue, coordinator, logger,
		cfg.Engine.HousekeepingCron, cfg.Runner.Timeout,
	)
}
