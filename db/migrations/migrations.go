package migrations

import (
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Run выполняет все миграции из каталога dir.
func Run(dsn, dir string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return eris.Wrap(err, "migrations: open db")
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return eris.Wrap(err, "migrations: set dialect")
	}

	zap.L().Info("running migrations", zap.String("dir", dir))
	if err := goose.Up(db, dir); err != nil {
		return eris.Wrap(err, "migrations: up")
	}
	return nil
}
