package dig_container

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/masomo-scorm/apps/api/echo"
	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
	"github.com/trezcool/masomo-scorm/core/scorm/manifest"
	"github.com/trezcool/masomo-scorm/core/scorm/player"
	emailsvc "github.com/trezcool/masomo-scorm/services/email"
	logsvc "github.com/trezcool/masomo-scorm/services/logger"
	"github.com/trezcool/masomo-scorm/services/metrics"
	"github.com/trezcool/masomo-scorm/services/notify"
	rediscache "github.com/trezcool/masomo-scorm/storage/cache/redis"
	contentstore "github.com/trezcool/masomo-scorm/storage/content"
	"github.com/trezcool/masomo-scorm/storage/database"
	inmemdb "github.com/trezcool/masomo-scorm/storage/database/inmem"
	sqlxrepos "github.com/trezcool/masomo-scorm/storage/database/sqlx"
)

// memoryEngine keeps every session in process memory. Data is lost on restart.
const memoryEngine = "memory"

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

// newDB returns a nil *sql.DB with the memory engine.
func newDB(conf *core.Config, loggerParam DBLoggerParam) *sql.DB {
	if conf.Database.Engine == memoryEngine {
		return nil
	}

	setUp := func() (*sql.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newRepository(conf *core.Config, db *sql.DB) scorm.Repository {
	if conf.Database.Engine == memoryEngine || db == nil {
		return inmemdb.NewScormRepository(inmemdb.Open())
	}
	return sqlxrepos.NewScormRepository(db)
}

// newLaunchStore shares launches through Redis when configured, else keeps them in process.
func newLaunchStore(conf *core.Config, logger core.Logger) player.LaunchStore {
	if conf.Redis.Addr == "" {
		return player.NewMemoryLaunchStore()
	}
	store, err := rediscache.NewLaunchStore(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up launch store: %v", err), err)
	}
	return store
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(log.New(os.Stdout, "EMAIL : ", log.LstdFlags), conf)
	}
	return emailsvc.NewSendgridService(logger, conf)
}

func newInbox() *notify.Inbox {
	return notify.NewInbox(0)
}

// newNotifier sends every notice to the logs, to operators by email and to the launch page.
func newNotifier(conf *core.Config, logger core.Logger, mailer core.EmailService, inbox *notify.Inbox) scorm.Notifier {
	return notify.Multi{
		notify.NewLogNotifier(logger),
		notify.NewMailNotifier(mailer, conf),
		inbox,
	}
}

func newMetrics(recorder *metrics.Recorder) scorm.Metrics {
	return recorder
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newInteractionLog(
	conf *core.Config,
	repo scorm.Repository,
	notifier scorm.Notifier,
	logger core.Logger,
	m scorm.Metrics,
) *scorm.InteractionLog {
	return scorm.NewInteractionLog(repo, notifier, logger, m, scorm.InteractionLogOptions{
		FlushInterval: conf.Runtime.FlushInterval,
		BatchSize:     conf.Runtime.FlushBatchSize,
		MaxPending:    conf.Runtime.MaxPendingInteractions,
		DefaultLimit:  conf.Runtime.InteractionLimit,
		MaxLimit:      conf.Runtime.MaxInteractionLimit,
	})
}

func newPlayer(
	conf *core.Config,
	svc *scorm.Service,
	interactions *scorm.InteractionLog,
	store player.LaunchStore,
	notifier scorm.Notifier,
	m scorm.Metrics,
	logger core.Logger,
) *player.Player {
	return player.New(svc, interactions, store, notifier, m, logger, player.Options{
		ProxyPrefix:   conf.Content.ProxyPrefix,
		CommitTimeout: conf.Runtime.CommitTimeout,
		IdleTimeout:   conf.Redis.LaunchTTL,
	})
}

type depsParam struct {
	dig.In

	Scorm        *scorm.Service
	Player       *player.Player
	Interactions *scorm.InteractionLog
	Inbox        *notify.Inbox
	Content      manifest.ContentStore
	Recorder     *metrics.Recorder
	Validate     *validator.Validate
	Translator   ut.Translator
}

func newDeps(p depsParam) *echoapi.Deps {
	return &echoapi.Deps{
		Scorm:        p.Scorm,
		Player:       p.Player,
		Interactions: p.Interactions,
		Inbox:        p.Inbox,
		Content:      p.Content,
		Metrics:      p.Recorder.Handler(),
		Validate:     p.Validate,
		Translator:   p.Translator,
	}
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newRepository))
	must(c.Provide(newLaunchStore))
	must(c.Provide(newEmailService))
	must(c.Provide(newInbox))
	must(c.Provide(newNotifier))
	must(c.Provide(metrics.NewRecorder))
	must(c.Provide(newMetrics))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(contentstore.NewDirStore, dig.As(new(manifest.ContentStore))))
	must(c.Provide(manifest.NewResolver, dig.As(new(scorm.ManifestResolver))))
	must(c.Provide(scorm.NewService))
	must(c.Provide(newInteractionLog))
	must(c.Provide(newPlayer))
	must(c.Provide(newDeps))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
