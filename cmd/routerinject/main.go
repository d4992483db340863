// Command routerinject builds one Envelope from flags and sends it into a
// running node, the way scripts/send_unicast.py and scripts/send_flood.py
// hand-build a JSON wire message and write it over a raw socket. Here the
// wire format comes from the envelope package instead of being
// hand-assembled, and a --driver redis mode is added alongside the
// original's socket-only injector.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/routerlab/node/envelope"
)

func main() {
	proto := flag.String("proto", "dijkstra", "dijkstra, dvr, flooding, lsr")
	driver := flag.String("driver", "socket", "socket or redis")
	host := flag.String("host", "127.0.0.1", "target host (socket driver)")
	port := flag.Int("port", 0, "target port (socket driver)")
	redisAddr := flag.String("redis", "127.0.0.1:6379", "redis address (redis driver)")
	channel := flag.String("channel", "", "destination channel (redis driver; defaults to router.<to>)")
	from := flag.String("from", "", "source node id")
	to := flag.String("to", "", "destination node id, or * to flood")
	payload := flag.String("payload", "", "message payload (sent as a JSON string)")
	ttl := flag.Int("ttl", envelope.DefaultTTL, "initial ttl")
	flag.Parse()

	if *from == "" || *to == "" {
		fmt.Fprintln(os.Stderr, "routerinject: --from and --to are required")
		os.Exit(1)
	}

	e := envelope.New(envelope.Proto(*proto), envelope.TypeMessage, *from, *to, *payload)
	e.TTL = *ttl

	var err error
	switch *driver {
	case "socket":
		err = sendSocket(*host, *port, e)
	case "redis":
		ch := *channel
		if ch == "" {
			ch = "router." + *to
		}
		err = sendRedis(*redisAddr, ch, e)
	default:
		fmt.Fprintf(os.Stderr, "routerinject: unknown driver %q\n", *driver)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "routerinject: send failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("sent")
}

func sendSocket(host string, port int, e envelope.Envelope) error {
	data, err := envelope.Serialize(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), 2*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Write(data)
	return err
}

func sendRedis(addr, channel string, e envelope.Envelope) error {
	data, err := envelope.Serialize(e)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	return rdb.Publish(context.Background(), channel, data).Err()
}
