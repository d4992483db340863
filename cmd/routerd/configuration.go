package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/routerlab/node/node"
)

// tomlConfig mirrors cmd/dtnd/configuration.go's tomlConfig: a
// [Logging]/[Node] pair of TOML tables, decoded with BurntSushi/toml.
// The [Node] fields proto, driver, node, topo, names, port, redis, channel
// and http also have a CLI flag override, since spec §6 pins the flags as
// the external contract and treats the TOML file as a convenience. The
// interval fields, report-caller and format have no flag; of [Logging],
// only the level can be overridden, with -log-level.
type tomlConfig struct {
	Logging logConf
	Node    nodeConf
}

type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

type nodeConf struct {
	Proto   string
	Driver  string
	Node    string
	Topo    string
	Names   string
	Port    int
	Redis   string
	Channel string

	HelloInterval int `toml:"hello-interval"`
	InfoInterval  int `toml:"info-interval"`
	NeighborDead  int `toml:"neighbor-dead"`
	NodeDead      int `toml:"node-dead"`

	HTTPAddr string `toml:"http"`
}

// cliConfig is the fully resolved configuration after flags have
// overridden (or stood in entirely for, absent a -config file) the TOML
// defaults.
type cliConfig struct {
	Proto   string
	Driver  string
	Node    string
	Topo    string
	Names   string
	Port    int
	Redis   string
	Channel string

	HelloInterval time.Duration
	InfoInterval  time.Duration
	NeighborDead  time.Duration
	NodeDead      time.Duration

	HTTPAddr string
}

// parseConfig applies environment variable defaults (spec §6), an
// optional TOML file, and finally CLI flags, in increasing priority —
// the same layering cmd/dtnd applies between its TOML file and the
// single positional config-path argument, generalized here into flags.
func parseConfig(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("routerd", flag.ContinueOnError)

	var tomlPath string
	fs.StringVar(&tomlPath, "config", "", "optional TOML configuration file")

	proto := fs.String("proto", "", "routing discipline: flooding, dvr, lsr, dijkstra")
	driver := fs.String("driver", "socket", "transport driver: socket, redis, ws")
	nodeID := fs.String("node", "", "this node's id")
	topo := fs.String("topo", "", "path to topo-*.json")
	names := fs.String("names", "", "path to names-*.json")
	port := fs.Int("port", 0, "listen port (socket/ws drivers only)")
	redisAddr := fs.String("redis", "127.0.0.1:6379", "redis address (redis driver only)")
	channel := fs.String("channel", "router.", "redis channel prefix (redis driver only)")
	httpAddr := fs.String("http", "", "address for the introspection HTTP server; empty disables it")
	logLevel := fs.String("log-level", "", "logrus level override")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		Driver:        "socket",
		Channel:       "router.",
		Redis:         "127.0.0.1:6379",
		HelloInterval: envDurationOr("HELLO_INTERVAL", node.DefaultHelloInterval),
		InfoInterval:  envDurationOr("INFO_INTERVAL", node.DefaultInfoInterval),
		NeighborDead:  envDurationOr("NEIGHBOR_DEAD", node.DefaultNeighborDead),
		NodeDead:      envDurationOr("NODE_DEAD", node.DefaultNodeDead),
	}

	if tomlPath != "" {
		var t tomlConfig
		if _, err := toml.DecodeFile(tomlPath, &t); err != nil {
			return cliConfig{}, fmt.Errorf("routerd: decoding %s: %w", tomlPath, err)
		}
		applyLogging(t.Logging)
		cfg.applyTOML(t.Node)
	}

	cfg.applyFlags(fs, *proto, *driver, *nodeID, *topo, *names, *port, *redisAddr, *channel, *httpAddr)

	if *logLevel != "" {
		if lvl, err := log.ParseLevel(*logLevel); err == nil {
			log.SetLevel(lvl)
		}
	}

	return cfg, cfg.validate()
}

func (c *cliConfig) applyTOML(n nodeConf) {
	if n.Proto != "" {
		c.Proto = n.Proto
	}
	if n.Driver != "" {
		c.Driver = n.Driver
	}
	if n.Node != "" {
		c.Node = n.Node
	}
	if n.Topo != "" {
		c.Topo = n.Topo
	}
	if n.Names != "" {
		c.Names = n.Names
	}
	if n.Port != 0 {
		c.Port = n.Port
	}
	if n.Redis != "" {
		c.Redis = n.Redis
	}
	if n.Channel != "" {
		c.Channel = n.Channel
	}
	if n.HelloInterval != 0 {
		c.HelloInterval = time.Duration(n.HelloInterval) * time.Second
	}
	if n.InfoInterval != 0 {
		c.InfoInterval = time.Duration(n.InfoInterval) * time.Second
	}
	if n.NeighborDead != 0 {
		c.NeighborDead = time.Duration(n.NeighborDead) * time.Second
	}
	if n.NodeDead != 0 {
		c.NodeDead = time.Duration(n.NodeDead) * time.Second
	}
	if n.HTTPAddr != "" {
		c.HTTPAddr = n.HTTPAddr
	}
}

// applyFlags overrides with anything explicitly set on the command line.
// flag.Visit only calls back for flags the user actually passed, so a
// flag left at its zero default never clobbers a TOML value.
func (c *cliConfig) applyFlags(fs *flag.FlagSet, proto, driver, nodeID, topo, names string, port int, redisAddr, channel, httpAddr string) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "proto":
			c.Proto = proto
		case "driver":
			c.Driver = driver
		case "node":
			c.Node = nodeID
		case "topo":
			c.Topo = topo
		case "names":
			c.Names = names
		case "port":
			c.Port = port
		case "redis":
			c.Redis = redisAddr
		case "channel":
			c.Channel = channel
		case "http":
			c.HTTPAddr = httpAddr
		}
	})
}

func (c cliConfig) validate() error {
	switch c.Proto {
	case "flooding", "dvr", "lsr", "dijkstra":
	default:
		return fmt.Errorf("routerd: --proto must be one of flooding, dvr, lsr, dijkstra (got %q)", c.Proto)
	}
	switch c.Driver {
	case "socket", "redis", "ws":
	default:
		return fmt.Errorf("routerd: --driver must be one of socket, redis, ws (got %q)", c.Driver)
	}
	if c.Node == "" {
		return fmt.Errorf("routerd: --node is required")
	}
	if (c.Driver == "socket" || c.Driver == "ws") && c.Port == 0 {
		return fmt.Errorf("routerd: --port is required for driver %q", c.Driver)
	}
	return nil
}

func applyLogging(l logConf) {
	if l.Level != "" {
		if lvl, err := log.ParseLevel(l.Level); err == nil {
			log.SetLevel(lvl)
		}
	}
	log.SetReportCaller(l.ReportCaller)
	if l.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{})
	}
}

func envDurationOr(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
