// Command routerd runs one routing-lab node: it loads a topology and
// names file, picks a transport driver and a routing discipline, and
// keeps the node supervisor running until SIGINT, the way cmd/dtnd wires
// a Core together from a parsed configuration and waits on waitSigint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/routerlab/node/envelope"
	"github.com/routerlab/node/forwarder"
	"github.com/routerlab/node/introspect"
	"github.com/routerlab/node/node"
	"github.com/routerlab/node/routerconfig"
	"github.com/routerlab/node/routing"
	"github.com/routerlab/node/transport"
	"github.com/routerlab/node/transport/pubsub"
	"github.com/routerlab/node/transport/tcpline"
	"github.com/routerlab/node/transport/wsbus"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("routerd: configuration error")
	}

	topology, err := loadTopology(cfg.Topo)
	if err != nil {
		log.WithError(err).Fatal("routerd: failed to load topology")
	}
	names, err := loadNames(cfg.Names)
	if err != nil {
		log.WithError(err).Fatal("routerd: failed to load names")
	}

	neighborCosts := topology[cfg.Node]
	neighborIDs := make([]string, 0, len(neighborCosts))
	for n := range neighborCosts {
		neighborIDs = append(neighborIDs, n)
	}

	tr, err := buildTransport(cfg, names)
	if err != nil {
		log.WithError(err).Fatal("routerd: failed to start transport")
	}

	algorithm, proto, err := buildAlgorithm(cfg, topology)
	if err != nil {
		log.WithError(err).Fatal("routerd: failed to build routing algorithm")
	}

	events := make(chan forwarder.RoutingEvent, 256)
	fwd := forwarder.New(cfg.Node, neighborIDs, transportSender{tr}, algorithm, events, deliver)

	sup := node.New(node.Config{
		Me:            cfg.Node,
		Proto:         proto,
		NeighborCosts: neighborCosts,
		HelloInterval: cfg.HelloInterval,
		InfoInterval:  cfg.InfoInterval,
		NeighborDead:  cfg.NeighborDead,
		NodeDead:      cfg.NodeDead,
		DisableInfo:   cfg.Proto == "dijkstra",
	}, algorithm, fwd, tr, events)

	var introspectSrv *introspect.Server
	if cfg.HTTPAddr != "" {
		state := introspect.NewState(cfg.Node)
		sup.SetIntrospectState(state)
		introspectSrv = introspect.NewServer(cfg.HTTPAddr, state)
		introspectSrv.Start()
		log.WithField("addr", cfg.HTTPAddr).Info("routerd: introspection endpoint listening")
	}

	topoWatcher, err := watchTopology(cfg, sup, fwd)
	if err != nil {
		log.WithError(err).Warn("routerd: topology hot-reload disabled")
	}
	namesWatcher, err := watchNames(cfg, tr)
	if err != nil {
		log.WithError(err).Warn("routerd: names hot-reload disabled")
	}

	log.WithFields(log.Fields{
		"node":   cfg.Node,
		"proto":  cfg.Proto,
		"driver": cfg.Driver,
	}).Info("routerd: node started")

	waitSigint()
	log.Info("routerd: shutting down")

	if topoWatcher != nil {
		topoWatcher.Close()
	}
	if namesWatcher != nil {
		namesWatcher.Close()
	}
	sup.Close()
	if introspectSrv != nil {
		_ = introspectSrv.Close()
	}
	_ = tr.Close()
}

// watchTopology wires a routerconfig.Watcher onto cfg.Topo, if set: a
// changed topology file is reloaded and this node's new neighbor set is
// pushed into the forwarder's flood fan-out and the supervisor's neighbor
// cost table, without restarting the process.
func watchTopology(cfg cliConfig, sup *node.Supervisor, fwd *forwarder.Forwarder) (*routerconfig.Watcher, error) {
	if cfg.Topo == "" {
		return nil, nil
	}
	return routerconfig.NewWatcher(cfg.Topo, func(data []byte) {
		topology, err := routerconfig.LoadTopology(data)
		if err != nil {
			log.WithError(err).Warn("routerd: failed to reload topology")
			return
		}
		costs := topology[cfg.Node]
		ids := make([]string, 0, len(costs))
		for n := range costs {
			ids = append(ids, n)
		}
		fwd.SetNeighbors(ids)
		sup.UpdateNeighbors(costs)
		log.WithField("neighbors", ids).Info("routerd: topology reloaded")
	})
}

// watchNames wires a routerconfig.Watcher onto cfg.Names, if set and the
// transport in use supports runtime address updates.
func watchNames(cfg cliConfig, tr transport.Transport) (*routerconfig.Watcher, error) {
	updater, ok := tr.(transport.NameUpdater)
	if cfg.Names == "" || !ok {
		return nil, nil
	}
	return routerconfig.NewWatcher(cfg.Names, func(data []byte) {
		names, err := routerconfig.LoadNames(data)
		if err != nil {
			log.WithError(err).Warn("routerd: failed to reload names")
			return
		}
		updater.SetNames(names)
		log.Info("routerd: names reloaded")
	})
}

// deliver is the terminal sink for messages addressed to this node. A
// full application-agent surface (REST, websocket) is outside scope;
// delivered messages are logged, matching the visibility a lab operator
// needs to observe the system under test.
func deliver(e envelope.Envelope) {
	log.WithFields(log.Fields{
		"from":    e.From,
		"origin":  e.Origin,
		"id":      e.ID,
		"payload": e.Payload,
	}).Info("routerd: message delivered")
}

func waitSigint() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
}

func loadTopology(path string) (map[string]map[string]float64, error) {
	if path == "" {
		return map[string]map[string]float64{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return routerconfig.LoadTopology(data)
}

func loadNames(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return routerconfig.LoadNames(data)
}

func buildTransport(cfg cliConfig, names map[string]string) (transport.Transport, error) {
	switch cfg.Driver {
	case "socket":
		return tcpline.New(cfg.Node, fmt.Sprintf(":%d", cfg.Port), names)
	case "redis":
		return pubsub.New(context.Background(), cfg.Node, cfg.Redis, cfg.Channel, names)
	case "ws":
		return wsbus.New(cfg.Node, fmt.Sprintf(":%d", cfg.Port), names)
	default:
		return nil, fmt.Errorf("routerd: unknown driver %q", cfg.Driver)
	}
}

func buildAlgorithm(cfg cliConfig, topology map[string]map[string]float64) (routing.Algorithm, envelope.Proto, error) {
	switch cfg.Proto {
	case "flooding":
		return routing.NewFlooding(), envelope.ProtoFlooding, nil
	case "dvr":
		return routing.NewDV(), envelope.ProtoDVR, nil
	case "lsr":
		return routing.NewLSR(), envelope.ProtoLSR, nil
	case "dijkstra":
		g := routerconfig.BuildGraph(topology, true)
		return routing.NewDijkstra(g), envelope.ProtoDijkstra, nil
	default:
		return nil, "", fmt.Errorf("routerd: unknown proto %q", cfg.Proto)
	}
}

// transportSender adapts transport.Transport (which takes a context and
// addresses peers by node id) to forwarder.Sender's simpler signature.
type transportSender struct {
	tr transport.Transport
}

func (s transportSender) Send(neighbor string, e envelope.Envelope) error {
	return s.tr.Send(context.Background(), neighbor, e)
}
