package fx

import (
	"github.com/Eyedema/ttstats/internal/config"
	"github.com/Eyedema/ttstats/internal/database"
	"github.com/Eyedema/ttstats/internal/logger"
	"github.com/Eyedema/ttstats/internal/repository"
	"github.com/Eyedema/ttstats/internal/service"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewMatchRepository),
	fx.Provide(repository.NewEloHistoryRepository),
	// svc
	fx.Provide(service.NewRatingService),
	fx.Provide(service.NewMatchService),
	fx.Provide(service.NewRecalcService),
)
