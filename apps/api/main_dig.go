package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	dig_container "github.com/trezcool/masomo-scorm/apps/api/di/dig"
	echoapi "github.com/trezcool/masomo-scorm/apps/api/echo"
	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
	"github.com/trezcool/masomo-scorm/core/scorm/player"
	"github.com/trezcool/masomo-scorm/services/metrics"
)

func startWithDig() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db *sql.DB,
		launches player.LaunchStore,
		validate *validator.Validate,
		translator ut.Translator,
		interactions *scorm.InteractionLog,
		pl *player.Player,
		recorder *metrics.Recorder,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.InitValidators(validate, translator)
		scorm.InitValidators(validate, translator)

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if db == nil {
				return
			}
			if err := db.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		defer func() {
			if closer, ok := launches.(io.Closer); ok {
				if err := closer.Close(); err != nil {
					apiLogger.Error(fmt.Sprintf("closing launch store: %v", err), err)
				}
			}
		}()
		defer apiLogger.Info("Application stopped")

		// =========================================================================
		// Start Debug Service
		//
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		expvar.Publish("active_launches", expvar.Func(func() interface{} { return pl.Active() }))
		expvar.Publish("pending_interactions", expvar.Func(func() interface{} { return interactions.Pending() }))

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start Background Workers

		interactions.Start()

		scheduler := cron.New(cron.WithLocation(time.UTC))
		if _, err := scheduler.AddFunc(conf.Runtime.Autosave, func() {
			autosave(conf, apiLogger, pl, interactions, recorder)
		}); err != nil {
			apiLogger.Fatal(fmt.Sprintf("scheduling autosave %q: %v", conf.Runtime.Autosave, err), err)
		}
		scheduler.Start()

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}

			// wait for a running autosave, then save what is left
			<-scheduler.Stop().Done()
			autosave(conf, apiLogger, pl, interactions, recorder)

			if err := interactions.Close(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("flushing interactions: %v", err), err)
			}
		}
	}))
}

// autosave persists the dirty runtime mirrors and whatever the interaction log still holds.
func autosave(conf *core.Config, logger core.Logger, pl *player.Player, interactions *scorm.InteractionLog, recorder *metrics.Recorder) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.Runtime.CommitTimeout)
	defer cancel()

	saved, err := pl.Autosave(ctx)
	recorder.ObserveAutosave(saved, err)
	if err != nil {
		logger.Warn(fmt.Sprintf("autosave: %v", err), err)
	}
	if interactions.Pending() > 0 {
		if err := interactions.Flush(ctx); err != nil {
			logger.Warn(fmt.Sprintf("flushing interactions: %v", err), err)
		}
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
