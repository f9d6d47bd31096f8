package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/ledokol-inc/moodle-load/discovery"
	"github.com/ledokol-inc/moodle-load/kafkah"
	"github.com/ledokol-inc/moodle-load/load"
	"github.com/ledokol-inc/moodle-load/load/variables"
	"github.com/ledokol-inc/moodle-load/logger"
	"github.com/ledokol-inc/moodle-load/seed"
	"github.com/ledokol-inc/moodle-load/store"
	"github.com/ledokol-inc/moodle-load/vuser"
)

const (
	portDefault      = 1455
	storeTypeBolt    = "bolt"
	storeTypeFile    = "file"
	defaultStorePath = "resources"

	behaviorWeb = "web"
	behaviorApi = "api"
)

type appConfig struct {
	Logging logger.Config `mapstructure:"logging"`
	Server  struct {
		HttpPort int `mapstructure:"http-port"`
	} `mapstructure:"server"`
	Moodle struct {
		BaseUrl      string              `mapstructure:"base-url"`
		Token        string              `mapstructure:"token"`
		Timeout      time.Duration       `mapstructure:"timeout"`
		ReloginPause time.Duration       `mapstructure:"relogin-pause"`
		Users        []vuser.Credentials `mapstructure:"users"`
	} `mapstructure:"moodle"`
	Api struct {
		MaxPrefetchCourses int `mapstructure:"max-prefetch-courses"`
	} `mapstructure:"api"`
	Search struct {
		Terms   []string `mapstructure:"terms"`
		Pattern string   `mapstructure:"pattern"`
	} `mapstructure:"search"`
	Seed  seed.Config `mapstructure:"seed"`
	Store struct {
		Type string `mapstructure:"type"`
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`
	Consul struct {
		Enabled          bool `mapstructure:"enabled"`
		discovery.Config `mapstructure:",squash"`
	} `mapstructure:"consul"`
	Kafka kafkah.Config `mapstructure:"kafka"`
}

func setDefaults() {
	viper.SetDefault("logging.level", logger.DefaultLevel)
	viper.SetDefault("logging.standard-output", "stdout")
	viper.SetDefault("logging.time-format", time.RFC3339)
	viper.SetDefault("logging.max-file-size", 100)
	viper.SetDefault("logging.max-backups", 5)
	viper.SetDefault("logging.max-age", 30)

	viper.SetDefault("server.http-port", portDefault)

	viper.SetDefault("moodle.base-url", "http://localhost")
	viper.SetDefault("moodle.token", vuser.DefaultToken)
	viper.SetDefault("moodle.timeout", 30*time.Second)
	viper.SetDefault("moodle.relogin-pause", vuser.DefaultReloginPause)

	defaults := seed.DefaultConfig()
	viper.SetDefault("seed.moodle-dir", defaults.MoodleDir)
	viper.SetDefault("seed.php", defaults.Php)
	viper.SetDefault("seed.num-students", defaults.NumStudents)
	viper.SetDefault("seed.num-teachers", defaults.NumTeachers)
	viper.SetDefault("seed.password", defaults.Password)
	viper.SetDefault("seed.teacher-role-id", defaults.TeacherRoleId)
	viper.SetDefault("seed.student-role-id", defaults.StudentRoleId)
	viper.SetDefault("seed.context-id", defaults.ContextId)
	viper.SetDefault("seed.teachers-per-course", defaults.TeachersPerCourse)
	viper.SetDefault("seed.students-per-course", defaults.StudentsPerCourse)
	viper.SetDefault("seed.forums", defaults.Forums)
	viper.SetDefault("seed.assignments", defaults.Assignments)

	viper.SetDefault("store.type", storeTypeFile)
	viper.SetDefault("store.path", defaultStorePath)

	_ = viper.BindEnv("logging.level", "log-level")
	_ = viper.BindEnv("server.http-port", "http_port")
	_ = viper.BindEnv("moodle.base-url", "moodle_base_url")
	_ = viper.BindEnv("moodle.token", "moodle_token")
	_ = viper.BindEnv("consul.address", "consul_server_address")
	_ = viper.BindEnv("consul.hostname", "HOSTNAME")
}

// loadConfig reads the config file when there is one, defaults and environment cover the rest.
func loadConfig(path string) (*appConfig, error) {
	setDefaults()
	viper.SetConfigFile(path)
	configMissing := false
	if err := viper.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read configuration %s: %w", path, err)
		}
		configMissing = true
	}

	cfg := new(appConfig)
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if len(cfg.Seed.Courses) == 0 {
		cfg.Seed.Courses = seed.DefaultCourses()
	}

	logger.Setup(cfg.Logging)
	if configMissing {
		log.Warn().Str("path", path).Msg("Configuration file not found, using defaults")
	}
	return cfg, nil
}

func (cfg *appConfig) userConfig() (vuser.Config, error) {
	userCfg := vuser.Config{
		BaseUrl:            cfg.Moodle.BaseUrl,
		Timeout:            cfg.Moodle.Timeout,
		Token:              cfg.Moodle.Token,
		Users:              cfg.Moodle.Users,
		ReloginPause:       cfg.Moodle.ReloginPause,
		SearchTerms:        cfg.Search.Terms,
		MaxPrefetchCourses: cfg.Api.MaxPrefetchCourses,
	}
	if cfg.Search.Pattern != "" {
		pattern, err := variables.New(vuser.SearchVariable, cfg.Search.Pattern)
		if err != nil {
			return vuser.Config{}, err
		}
		userCfg.SearchPattern = pattern
	}
	return userCfg, nil
}

func (cfg *appConfig) registerBehaviors() error {
	userCfg, err := cfg.userConfig()
	if err != nil {
		return err
	}
	load.RegisterBehavior(behaviorWeb, vuser.NewWebFactory(userCfg))
	load.RegisterBehavior(behaviorApi, vuser.NewApiFactory(userCfg))
	return nil
}

func (cfg *appConfig) newStore() (store.Store, error) {
	switch cfg.Store.Type {
	case storeTypeBolt:
		return store.NewBoltStore(cfg.Store.Path), nil
	case storeTypeFile, "":
		return store.NewFileStore(cfg.Store.Path), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

func (cfg *appConfig) newSink() (load.ResultSink, func()) {
	if !cfg.Kafka.Enabled() {
		return nil, func() {}
	}
	publisher := kafkah.NewPublisher(cfg.Kafka)
	return publisher, publisher.Close
}
