package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address            string
		Host               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// RedisConfig holds the launch registry connection. An empty Addr keeps launches in memory.
	RedisConfig struct {
		Addr      string
		Password  string
		DB        int
		Prefix    string
		LaunchTTL time.Duration
	}

	ContentConfig struct {
		Root        string // directory holding the extracted packages
		ProxyPrefix string // same-origin path the content proxy is mounted on
	}

	RuntimeConfig struct {
		Autosave               string // cron spec
		CommitTimeout          time.Duration
		FlushInterval          time.Duration
		FlushBatchSize         int
		MaxPendingInteractions int
		InteractionLimit       int
		MaxInteractionLimit    int
	}

	Config struct {
		AppName          string
		Build            string
		Env              string
		Debug            bool
		TestMode         bool
		WorkDir          string
		SecretKey        string
		RollbarToken     string
		SendgridApiKey   string
		DefaultFromEmail mail.Address
		OperatorEmails   []mail.Address

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Content  ContentConfig
		Runtime  RuntimeConfig
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

// NewConfig reads the configuration from the environment.
// ENV selects the env prefix (DEV, TEST, QA, PROD) and the optional `config/.env.<env>` file to load.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		WorkDir:          wd,
		SecretKey:        v.GetString("secretKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		DefaultFromEmail: parseAddress(v.GetString("defaultFromEmail")),
		OperatorEmails:   parseAddressList(v.GetString("operatorEmails")),
		Server: ServerConfig{
			Address:            v.GetString("server_address"),
			Host:               v.GetString("server_host"),
			DebugHost:          v.GetString("server_debugHost"),
			ShutdownTimeout:    v.GetDuration("server_shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server_jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database_engine"),
			Host:          v.GetString("database_host"),
			Port:          v.GetString("database_port"),
			Name:          v.GetString("database_name"),
			User:          v.GetString("database_user"),
			Password:      v.GetString("database_password"),
			AdminUser:     v.GetString("database_adminUser"),
			AdminPassword: v.GetString("database_adminPassword"),
			DisableTLS:    v.GetBool("database_disableTLS"),
		},
		Redis: RedisConfig{
			Addr:      v.GetString("redis_addr"),
			Password:  v.GetString("redis_password"),
			DB:        v.GetInt("redis_db"),
			Prefix:    v.GetString("redis_prefix"),
			LaunchTTL: v.GetDuration("redis_launchTTL"),
		},
		Content: ContentConfig{
			Root:        v.GetString("content_root"),
			ProxyPrefix: strings.TrimRight(v.GetString("content_proxyPrefix"), "/"),
		},
		Runtime: RuntimeConfig{
			Autosave:               v.GetString("runtime_autosave"),
			CommitTimeout:          v.GetDuration("runtime_commitTimeout"),
			FlushInterval:          v.GetDuration("runtime_flushInterval"),
			FlushBatchSize:         v.GetInt("runtime_flushBatchSize"),
			MaxPendingInteractions: v.GetInt("runtime_maxPendingInteractions"),
			InteractionLimit:       v.GetInt("runtime_interactionLimit"),
			MaxInteractionLimit:    v.GetInt("runtime_maxInteractionLimit"),
		},
	}
	if conf.TestMode {
		conf.Debug = true
	}
	return conf
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Masomo SCORM")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("defaultFromEmail", "Masomo <noreply@localhost>")
	v.SetDefault("operatorEmails", "")

	v.SetDefault("server_address", ":8000")
	v.SetDefault("server_host", "localhost")
	v.SetDefault("server_debugHost", ":4000")
	v.SetDefault("server_shutdownTimeout", 5*time.Second)
	v.SetDefault("server_jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database_engine", "postgres")
	v.SetDefault("database_host", "localhost")
	v.SetDefault("database_port", "5432")
	v.SetDefault("database_name", "masomo_scorm")
	v.SetDefault("database_user", "masomo")
	v.SetDefault("database_password", "masomo")
	v.SetDefault("database_disableTLS", true)

	v.SetDefault("redis_prefix", "scorm:launch:")
	v.SetDefault("redis_launchTTL", 12*time.Hour)

	v.SetDefault("content_root", "content")
	v.SetDefault("content_proxyPrefix", "/content")

	v.SetDefault("runtime_autosave", "@every 30s")
	v.SetDefault("runtime_commitTimeout", 10*time.Second)
	v.SetDefault("runtime_flushInterval", 2*time.Second)
	v.SetDefault("runtime_flushBatchSize", 100)
	v.SetDefault("runtime_maxPendingInteractions", 10000)
	v.SetDefault("runtime_interactionLimit", 50)
	v.SetDefault("runtime_maxInteractionLimit", 500)
}

func parseAddress(s string) mail.Address {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return mail.Address{Address: s}
	}
	return *addr
}

func parseAddressList(s string) []mail.Address {
	if CleanString(s) == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(s)
	if err != nil {
		log.Printf("config: invalid operatorEmails %q: %v", s, err)
		return nil
	}
	list := make([]mail.Address, 0, len(addrs))
	for _, a := range addrs {
		list = append(list, *a)
	}
	return list
}
