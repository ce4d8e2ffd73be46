package bonus

import (
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/domain"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/repository"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/service"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("bonus.service",
	fx.Provide(repository.Provide),
	fx.Provide(provideTierSource),
	fx.Provide(service.NewService),
)

func provideTierSource(holder *config.BonusTierConfigHolder) domain.TierSource {
	return holder
}
