package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	gcfg "gopkg.in/gcfg.v1"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
	"k8s.io/klog/v2"

	"github.com/oci-utils/vnic-agent/pkg/types"
)

// DefaultConfig holds parameters applied to every configured interface
type DefaultConfig struct {
	// MTU set on every configured VNIC device
	MTU int `gcfg:"mtu"`
	// NamespacePrefix is used to derive a namespace name when the
	// namespace preference is the empty string
	NamespacePrefix string `gcfg:"namespace-prefix"`
}

// LoggingConfig holds logging-related parsed config file parameters and command-line overrides
type LoggingConfig struct {
	File               string `gcfg:"logfile"`
	Level              int    `gcfg:"loglevel"`
	LogFileMaxSize     int    `gcfg:"logfile-maxsize"`
	LogFileMaxBackups  int    `gcfg:"logfile-maxbackups"`
	LogFileMaxAge      int    `gcfg:"logfile-maxage"`
	LogFileCompression bool   `gcfg:"logfile-compress"`
}

// PathsConfig holds the location of every file the agent reads or writes
type PathsConfig struct {
	StateFile         string `gcfg:"state-file"`
	LegacyExcludeFile string `gcfg:"legacy-exclude-file"`
	RTTables          string `gcfg:"rt-tables"`
	NMConf            string `gcfg:"nm-conf"`
	NetnsDir          string `gcfg:"netns-dir"`
	LockFile          string `gcfg:"lock-file"`
	SSHD              string `gcfg:"sshd"`
	IP                string `gcfg:"ip"`
}

// MetadataConfig holds instance metadata and control-plane API parameters
type MetadataConfig struct {
	Endpoint string `gcfg:"endpoint"`
	// Timeout of a single metadata request, in seconds
	Timeout int `gcfg:"timeout"`
	Retries int `gcfg:"retries"`
	// UseAPI enables the control-plane private IP lookup
	UseAPI bool `gcfg:"use-api"`
}

// RoutingConfig bounds the numeric ids assigned to per-VNIC routing tables
type RoutingConfig struct {
	TableMin int `gcfg:"table-min"`
	TableMax int `gcfg:"table-max"`
}

// DaemonConfig holds parameters of the long running reconciliation loop
type DaemonConfig struct {
	// SyncPeriod between two reconciliation passes, in seconds
	SyncPeriod         int    `gcfg:"sync-period"`
	MetricsBindAddress string `gcfg:"metrics-bind-address"`
}

// Config is the complete agent configuration. It is built once by InitConfig
// and handed to every constructor.
type Config struct {
	Default  DefaultConfig
	Logging  LoggingConfig
	Paths    PathsConfig
	Metadata MetadataConfig
	Routing  RoutingConfig
	Daemon   DaemonConfig
}

// MetadataTimeout returns the per-request metadata timeout
func (c *Config) MetadataTimeout() time.Duration {
	return time.Duration(c.Metadata.Timeout) * time.Second
}

// SyncPeriod returns the daemon reconciliation period
func (c *Config) SyncPeriod() time.Duration {
	return time.Duration(c.Daemon.SyncPeriod) * time.Second
}

// Defaults returns a configuration populated with built-in values only
func Defaults() *Config {
	return &Config{
		Default: DefaultConfig{
			MTU:             types.DefaultMTU,
			NamespacePrefix: types.NamespacePrefix,
		},
		Logging: LoggingConfig{
			Level:             2,
			LogFileMaxSize:    100,
			LogFileMaxBackups: 5,
			LogFileMaxAge:     5,
		},
		Paths: PathsConfig{
			StateFile:         types.DefaultStateFile,
			LegacyExcludeFile: types.DefaultLegacyExcludeFile,
			RTTables:          types.DefaultRTTablesFile,
			NMConf:            types.DefaultNMConfFile,
			NetnsDir:          types.DefaultNetnsDir,
			LockFile:          types.DefaultLockFile,
			SSHD:              types.DefaultSSHDPath,
			IP:                types.DefaultIPPath,
		},
		Metadata: MetadataConfig{
			Endpoint: types.DefaultMetadataEndpoint,
			Timeout:  5,
			Retries:  3,
			UseAPI:   true,
		},
		Routing: RoutingConfig{
			TableMin: types.RouteTableMin,
			TableMax: types.RouteTableMax,
		},
		Daemon: DaemonConfig{
			SyncPeriod: 60,
		},
	}
}

const configFileFlag = "config-file"

// Flags are the command line flags common to every vnic-agent command
var Flags = []cli.Flag{
	&cli.StringFlag{
		Name:  configFileFlag,
		Usage: "configuration file path",
		Value: types.DefaultConfigFile,
	},
	&cli.IntFlag{
		Name:  "mtu",
		Usage: "MTU set on configured VNIC devices",
	},
	&cli.IntFlag{
		Name:    "loglevel",
		Aliases: []string{"v"},
		Usage:   "log verbosity and level: info, warn, fatal, error are always printed no matter the log level. Use 5 for debug (default: 2)",
	},
	&cli.StringFlag{
		Name:  "logfile",
		Usage: "path of a file to direct log output to",
	},
	&cli.IntFlag{
		Name:  "logfile-maxsize",
		Usage: "maximum size in megabytes of the log file before it gets rolled",
	},
	&cli.IntFlag{
		Name:  "logfile-maxbackups",
		Usage: "maximum number of old log files to retain",
	},
	&cli.IntFlag{
		Name:  "logfile-maxage",
		Usage: "maximum number of days to retain old log files",
	},
	&cli.StringFlag{
		Name:  "state-file",
		Usage: "file holding the persisted exclusion list and namespace preferences",
	},
	&cli.StringFlag{
		Name:  "metadata-endpoint",
		Usage: "instance metadata service base URL",
	},
	&cli.BoolFlag{
		Name:  "no-api",
		Usage: "do not query the control-plane API for secondary private IPs",
	},
}

// DaemonFlags are the flags specific to the daemon command
var DaemonFlags = []cli.Flag{
	&cli.IntFlag{
		Name:  "sync-period",
		Usage: "seconds between two reconciliation passes",
	},
	&cli.StringFlag{
		Name:  "metrics-bind-address",
		Usage: "address to serve prometheus metrics on, e.g. 127.0.0.1:9410; empty disables the metrics server",
	},
}

type override struct {
	flag  string
	apply func(ctx *cli.Context, cfg *Config)
}

var overrides = []override{
	{"mtu", func(ctx *cli.Context, cfg *Config) { cfg.Default.MTU = ctx.Int("mtu") }},
	{"loglevel", func(ctx *cli.Context, cfg *Config) { cfg.Logging.Level = ctx.Int("loglevel") }},
	{"logfile", func(ctx *cli.Context, cfg *Config) { cfg.Logging.File = ctx.String("logfile") }},
	{"logfile-maxsize", func(ctx *cli.Context, cfg *Config) { cfg.Logging.LogFileMaxSize = ctx.Int("logfile-maxsize") }},
	{"logfile-maxbackups", func(ctx *cli.Context, cfg *Config) { cfg.Logging.LogFileMaxBackups = ctx.Int("logfile-maxbackups") }},
	{"logfile-maxage", func(ctx *cli.Context, cfg *Config) { cfg.Logging.LogFileMaxAge = ctx.Int("logfile-maxage") }},
	{"state-file", func(ctx *cli.Context, cfg *Config) { cfg.Paths.StateFile = ctx.String("state-file") }},
	{"metadata-endpoint", func(ctx *cli.Context, cfg *Config) { cfg.Metadata.Endpoint = ctx.String("metadata-endpoint") }},
	{"no-api", func(ctx *cli.Context, cfg *Config) { cfg.Metadata.UseAPI = !ctx.Bool("no-api") }},
	{"sync-period", func(ctx *cli.Context, cfg *Config) { cfg.Daemon.SyncPeriod = ctx.Int("sync-period") }},
	{"metrics-bind-address", func(ctx *cli.Context, cfg *Config) {
		cfg.Daemon.MetricsBindAddress = ctx.String("metrics-bind-address")
	}},
}

// InitConfig builds the configuration from defaults, the config file and
// command line overrides, in increasing order of precedence, and sets up
// logging accordingly.
func InitConfig(ctx *cli.Context) (*Config, error) {
	cfg, err := buildConfig(ctx)
	if err != nil {
		return nil, err
	}
	if err := initLogging(&cfg.Logging); err != nil {
		return nil, err
	}
	klog.V(5).Infof("Configuration: %+v", *cfg)
	return cfg, nil
}

func buildConfig(ctx *cli.Context) (*Config, error) {
	cfg := Defaults()

	path := ctx.String(configFileFlag)
	if path != "" {
		if err := readConfigFile(path, ctx.IsSet(configFileFlag), cfg); err != nil {
			return nil, err
		}
	}

	for _, o := range overrides {
		if ctx.IsSet(o.flag) {
			o.apply(ctx, cfg)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readConfigFile parses path into cfg. A missing file is only an error when
// it was explicitly requested.
func readConfigFile(path string, explicit bool, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to access config file %s: %w", path, err)
	}
	if err := gcfg.ReadFileInto(cfg, path); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	klog.V(4).Infof("Parsed config file %s", path)
	return nil
}

// ReadConfigString parses an in-memory config file on top of cfg
func ReadConfigString(s string, cfg *Config) error {
	if err := gcfg.ReadStringInto(cfg, s); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg.validate()
}

func (c *Config) validate() error {
	if c.Default.MTU < 68 {
		return fmt.Errorf("invalid MTU %d", c.Default.MTU)
	}
	if c.Routing.TableMin <= 0 || c.Routing.TableMax < c.Routing.TableMin {
		return fmt.Errorf("invalid routing table range %d-%d", c.Routing.TableMin, c.Routing.TableMax)
	}
	// 253-255 are default, main and local
	if c.Routing.TableMin <= 255 && c.Routing.TableMax >= 253 {
		return fmt.Errorf("routing table range %d-%d overlaps reserved tables", c.Routing.TableMin, c.Routing.TableMax)
	}
	if c.Daemon.SyncPeriod <= 0 {
		return fmt.Errorf("invalid sync period %d", c.Daemon.SyncPeriod)
	}
	if c.Metadata.Endpoint == "" {
		return fmt.Errorf("metadata endpoint must not be empty")
	}
	return nil
}

func initLogging(l *LoggingConfig) error {
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	if err := klogFlags.Set("v", strconv.Itoa(l.Level)); err != nil {
		return fmt.Errorf("failed to set log level %d: %w", l.Level, err)
	}
	if l.File == "" {
		return nil
	}
	if err := klogFlags.Set("logtostderr", "false"); err != nil {
		return err
	}
	if err := klogFlags.Set("alsologtostderr", "false"); err != nil {
		return err
	}
	klog.SetOutput(&lumberjack.Logger{
		Filename:   l.File,
		MaxSize:    l.LogFileMaxSize,
		MaxBackups: l.LogFileMaxBackups,
		MaxAge:     l.LogFileMaxAge,
		Compress:   l.LogFileCompression,
	})
	return nil
}
