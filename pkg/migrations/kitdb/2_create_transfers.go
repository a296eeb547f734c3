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
		log.Println("creating transfers table...")
		if err := mghelper.CreateSchema(ctx, db, &pg.TransferDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndex(ctx, db, &pg.TransferDao{}, "account", "contract", "block_number"); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &pg.TransferDao{}, "pending")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping transfers table...")
		if err := mghelper.DropModelIndexes(ctx, db, &pg.TransferDao{}, "pending"); err != nil {
			return err
		}
		if err := mghelper.DropModelIndex(ctx, db, &pg.TransferDao{}, "account", "contract", "block_number"); err != nil {
			return err
		}
		return mghelper.DropTables(ctx, db, &pg.TransferDao{})
	})
}
