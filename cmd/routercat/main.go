// Command routercat reads envelope lines from stdin, parses each with
// the tolerant codec, and pretty-prints the result — a debug aid for
// eyeballing traffic captured off the wire (e.g. via tcpdump or a Redis
// MONITOR session), the way cmd/dtncat lets an operator inspect bundle
// traffic from outside the daemon.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/routerlab/node/envelope"
)

func main() {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		e, err := envelope.ParseLine(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "routercat: %v\n", err)
			continue
		}

		pretty, err := json.MarshalIndent(e, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "routercat: %v\n", err)
			continue
		}
		fmt.Println(string(pretty))
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "routercat: reading stdin: %v\n", err)
		os.Exit(1)
	}
}
