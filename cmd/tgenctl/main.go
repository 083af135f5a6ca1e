// tgenctl is the interactive control shell for tgend.
//
// It connects to tgend's JSON/HTTP control plane and provides a
// Junos-style command set for inspecting ports and driving streams,
// transmit, and capture.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pktforge/tgen/pkg/cli"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "tgend control-plane address")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "tgenctl: cannot reach tgend at %s: %v\n", *addr, err)
		os.Exit(1)
	}
	resp.Body.Close()

	shell := cli.New(*addr)
	if err := shell.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tgenctl: %v\n", err)
		os.Exit(1)
	}
}
