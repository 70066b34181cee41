// Command recallwatch-migrate applies schema migrations
package main

import (
	"errors"
	"flag"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"recallwatch/internal/platform/config"
	"recallwatch/internal/platform/logger"
)

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	l := logger.Get()

	var (
		fPath  = flag.String("path", "migrations", "migrations directory")
		fCmd   = flag.String("cmd", "up", "up | down | version | force")
		fSteps = flag.Int("steps", 1, "steps for down")
		fForce = flag.Int("force", 0, "target version for force")
	)
	flag.Parse()

	// the pgx/v5 driver registers the pgx5:// scheme
	dsn := pgCfg.MustString("DBURL")
	dsn = strings.Replace(dsn, "postgres://", "pgx5://", 1)
	dsn = strings.Replace(dsn, "postgresql://", "pgx5://", 1)

	m, err := migrate.New("file://"+*fPath, dsn)
	if err != nil {
		l.Panic().Err(err).Msg("migrate init failed")
	}
	defer func() {
		serr, derr := m.Close()
		if serr != nil || derr != nil {
			l.Error().AnErr("source", serr).AnErr("db", derr).Msg("migrate close")
		}
	}()

	switch *fCmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-*fSteps)
	case "version":
		v, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			l.Panic().Err(verr).Msg("version failed")
		}
		l.Info().Uint("version", v).Bool("dirty", dirty).Msg("schema version")
		return
	case "force":
		err = m.Force(*fForce)
	default:
		l.Panic().Str("cmd", *fCmd).Msg("unknown command")
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		l.Panic().Err(err).Str("cmd", *fCmd).Msg("migration failed")
	}
	l.Info().Str("cmd", *fCmd).Msg("migrations applied")
}
