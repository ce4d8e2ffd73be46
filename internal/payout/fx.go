package payout

import (
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/payout/repository"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
