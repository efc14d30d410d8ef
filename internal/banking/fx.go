package banking

import (
	"github.com/smallbiznis/referralhub/internal/banking/repository"
	"github.com/smallbiznis/referralhub/internal/banking/resolver"
	"github.com/smallbiznis/referralhub/internal/banking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("banking.service",
	fx.Provide(repository.Provide),
	fx.Provide(resolver.New),
	fx.Provide(service.NewService),
)
