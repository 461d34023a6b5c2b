package audit

import (
	"github.com/lumenadtech/lumen/internal/audit/repository"
	"github.com/lumenadtech/lumen/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
