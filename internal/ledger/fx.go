package ledger

import (
	"github.com/smallbiznis/bizbooks/internal/ledger/repository"
	"github.com/smallbiznis/bizbooks/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.NewAccountRepository),
	fx.Provide(service.NewService),
	fx.Provide(service.NewTrialBalanceService),
)
