package earning

import (
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/earning/repository"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/earning/service"
	"go.uber.org/fx"
)

var Module = fx.Module("earning.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
