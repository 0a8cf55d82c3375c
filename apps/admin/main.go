package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
	"github.com/trezcool/masomo-scorm/core/scorm/manifest"
	logsvc "github.com/trezcool/masomo-scorm/services/logger"
	contentstore "github.com/trezcool/masomo-scorm/storage/content"
	"github.com/trezcool/masomo-scorm/storage/database"
	sqlxrepos "github.com/trezcool/masomo-scorm/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() { _ = db.Close() }()

	// set up services
	repo := sqlxrepos.NewScormRepository(db)
	resolver := manifest.NewResolver(contentstore.NewDirStore(conf))

	// start CLI
	cli := commandLine{
		db:  db,
		svc: scorm.NewService(repo, resolver, logger, nil),
		out: os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		_ = db.Close()
		os.Exit(1)
	}
}
