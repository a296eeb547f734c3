package kitdb

import (
	"context"
	"log"

	mghelper "github.com/chainsafe/eip20-kit/pkg/pgutil/migrations"
	"github.com/chainsafe/eip20-kit/pkg/store/pg"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating balances table...")
		return mghelper.CreateSchema(ctx, db, &pg.BalanceDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping balances table...")
		return mghelper.DropTables(ctx, db, &pg.BalanceDao{})
	})
}
