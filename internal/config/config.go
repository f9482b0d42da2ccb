// Package config resolves the miner's command-line flags, environment
// variables, and built-in defaults into a single Config.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/silentarmy/stratum-miner/pkg/errors"
)

// Config holds everything needed to run the coordinator.
type Config struct {
	// Logging
	Verbose int
	Debug   bool

	// Solver
	SolverBinary   string
	List           bool
	Use            []int
	InstancesPerID int

	// Pool
	Host string
	Port int
	User string
	Pwd  string

	// Telemetry (all optional, empty/zero means disabled)
	RedisAddr    string
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
	KafkaBrokers []string

	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// Load parses args (normally os.Args[1:]) into a Config, falling back to
// environment variables and then built-in defaults for anything not given
// on the command line.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("sa-miner", pflag.ContinueOnError)

	verbose := fs.CountP("verbose", "v", "increase log verbosity (repeatable)")
	debug := fs.Bool("debug", false, "enable debug logging")
	list := fs.Bool("list", false, "list available GPUs by asking the solver binary, then exit")
	solverBinary := fs.String("solver", getEnv("SA_SOLVER_BINARY", "sa-solver"), "path to the sa-solver binary")
	use := fs.String("use", getEnv("SA_USE", "0"), "comma-separated GPU device ids to mine with")
	instances := fs.Int("instances", getEnvInt("SA_INSTANCES", 2), "solver processes to launch per device id")
	connect := fs.StringP("connect", "c", getEnv("SA_CONNECT", ""), "pool URL, stratum+tcp://host:port")
	user := fs.StringP("user", "u", getEnv("SA_USER", ""), "pool username (Zcash address)")
	pwd := fs.StringP("pwd", "p", getEnv("SA_PWD", ""), "pool password")
	redisAddr := fs.String("redis-addr", getEnv("SA_REDIS_ADDR", ""), "optional Redis address for live stats publish")
	influxURL := fs.String("influx-url", getEnv("SA_INFLUX_URL", ""), "optional InfluxDB URL for stats history")
	influxToken := fs.String("influx-token", getEnv("SA_INFLUX_TOKEN", ""), "InfluxDB auth token")
	influxOrg := fs.String("influx-org", getEnv("SA_INFLUX_ORG", "sa-miner"), "InfluxDB organization")
	influxBucket := fs.String("influx-bucket", getEnv("SA_INFLUX_BUCKET", "mining"), "InfluxDB bucket")
	kafkaBrokers := fs.String("kafka-brokers", getEnv("SA_KAFKA_BROKERS", ""), "optional comma-separated Kafka broker list for event streaming")

	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "parse_flags", "failed to parse command-line flags")
	}

	cfg := &Config{
		Verbose:        *verbose,
		Debug:          *debug,
		List:           *list,
		SolverBinary:   *solverBinary,
		InstancesPerID: *instances,
		User:           *user,
		Pwd:            *pwd,
		RedisAddr:      *redisAddr,
		InfluxURL:      *influxURL,
		InfluxToken:    *influxToken,
		InfluxOrg:      *influxOrg,
		InfluxBucket:   *influxBucket,
		DialTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
	}

	if *kafkaBrokers != "" {
		cfg.KafkaBrokers = strings.Split(*kafkaBrokers, ",")
	}

	devIDs, err := parseUseList(*use)
	if err != nil {
		return nil, err
	}
	cfg.Use = devIDs

	if !cfg.List {
		host, port, err := parsePoolURL(*connect)
		if err != nil {
			return nil, err
		}
		cfg.Host, cfg.Port = host, port

		if cfg.User == "" {
			return nil, errors.New(errors.ErrorTypeConfig, "load_config", "--user is required")
		}
	}

	return cfg, nil
}

// DevIDs expands --use and --instances into one entry per solver process to
// launch; running several instances against the same device id is how a
// single GPU with spare throughput gets more than one solver searching it.
func (c *Config) DevIDs() []int {
	n := c.InstancesPerID
	if n < 1 {
		n = 1
	}
	ids := make([]int, 0, len(c.Use)*n)
	for _, id := range c.Use {
		for i := 0; i < n; i++ {
			ids = append(ids, id)
		}
	}
	return ids
}

func parseUseList(csv string) ([]int, error) {
	parts := strings.Split(csv, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "parse_use", "invalid GPU device id").
				WithContext("value", p)
		}
		ids = append(ids, id)
	}
	// An empty set is valid: no solvers are spawned and no jobs are ever
	// dispatched, but the client still connects and authorizes normally.
	return ids, nil
}

// parsePoolURL splits "stratum+tcp://host:port", taking the rightmost colon
// as the host/port separator so an IPv6 literal host still parses correctly.
func parsePoolURL(raw string) (host string, port int, err error) {
	if raw == "" {
		return "", 0, errors.New(errors.ErrorTypeConfig, "parse_pool_url", "--connect is required")
	}

	s := raw
	if idx := strings.Index(s, "://"); idx >= 0 {
		s = s[idx+3:]
	}

	sep := strings.LastIndex(s, ":")
	if sep < 0 {
		return "", 0, errors.New(errors.ErrorTypeConfig, "parse_pool_url", "pool URL must include a port").
			WithContext("url", raw)
	}

	host = s[:sep]
	portStr := s[sep+1:]
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, errors.Wrap(err, errors.ErrorTypeConfig, "parse_pool_url", "invalid port").
			WithContext("url", raw)
	}
	if host == "" {
		return "", 0, errors.New(errors.ErrorTypeConfig, "parse_pool_url", "pool URL is missing a host").
			WithContext("url", raw)
	}
	return host, port, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}
