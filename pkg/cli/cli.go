// Package cli implements the Junos-style interactive shell for tgenctl,
// the remote control client for tgend's control-plane HTTP API.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/pktforge/tgen/pkg/controlapi"
)

var errExit = fmt.Errorf("exit")

// CLI is the interactive command-line interface for a remote tgend.
type CLI struct {
	rl       *readline.Instance
	client   *http.Client
	baseURL  string
	hostname string
	username string
}

// New creates a CLI that talks to the tgend control API at baseURL
// (e.g. "http://127.0.0.1:8080").
func New(baseURL string) *CLI {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "tgenctl"
	}
	username := os.Getenv("USER")
	if username == "" {
		username = "root"
	}

	return &CLI{
		client:   &http.Client{Timeout: 5 * time.Second},
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		hostname: hostname,
		username: username,
	}
}

// Run starts the interactive shell loop and blocks until the user quits
// or stdin closes.
func (c *CLI) Run() error {
	var err error
	c.rl, err = readline.NewEx(&readline.Config{
		Prompt:          c.prompt(),
		HistoryFile:     "/tmp/tgenctl_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer c.rl.Close()

	fmt.Println("tgenctl - traffic generator control shell")
	fmt.Println("Type '?' for help")
	fmt.Println()

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := c.dispatch(line); err != nil {
			if err == errExit {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return nil
}

func (c *CLI) prompt() string {
	return fmt.Sprintf("%s@%s> ", c.username, c.hostname)
}

func (c *CLI) dispatch(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "show":
		return c.handleShow(parts[1:])
	case "stream":
		return c.handleStream(parts[1:])
	case "transmit":
		return c.handleTransmit(parts[1:])
	case "capture":
		return c.handleCapture(parts[1:])
	case "quit", "exit":
		return errExit
	case "?", "help":
		c.showHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", parts[0])
	}
}

func (c *CLI) handleShow(args []string) error {
	if len(args) == 0 {
		fmt.Println("show: specify what to show")
		fmt.Println("  ports            List all ports")
		fmt.Println("  port <id>        Show one port's summary")
		fmt.Println("  link <id>        Show a port's link state")
		fmt.Println("  stats <id>       Show a port's traffic rates")
		return nil
	}

	switch args[0] {
	case "ports":
		var ports []controlapi.PortSummary
		if err := c.getJSON("/api/v1/ports", &ports); err != nil {
			return err
		}
		fmt.Printf("  %-4s %-12s %-14s %-8s %6s %s\n", "ID", "Name", "State", "Usable", "Core", "Transmit")
		for _, p := range ports {
			fmt.Printf("  %-4d %-12s %-14s %-8t %6d %t\n", p.ID, p.Name, p.State, p.Usable, p.TxCoreID, p.IsTransmitOn)
		}
		return nil

	case "port":
		id, err := requirePortID(args[1:])
		if err != nil {
			return err
		}
		var p controlapi.PortSummary
		if err := c.getJSON(fmt.Sprintf("/api/v1/ports/%d", id), &p); err != nil {
			return err
		}
		fmt.Printf("Port %d: %s\n", p.ID, p.Name)
		fmt.Printf("  State:        %s\n", p.State)
		fmt.Printf("  Usable:       %t\n", p.Usable)
		fmt.Printf("  Tx core:      %d\n", p.TxCoreID)
		fmt.Printf("  Transmitting: %t\n", p.IsTransmitOn)
		return nil

	case "link":
		id, err := requirePortID(args[1:])
		if err != nil {
			return err
		}
		var ls controlapi.LinkStateResponse
		if err := c.getJSON(fmt.Sprintf("/api/v1/ports/%d/link", id), &ls); err != nil {
			return err
		}
		fmt.Printf("Port %d link: %s\n", ls.PortID, ls.State)
		return nil

	case "stats":
		id, err := requirePortID(args[1:])
		if err != nil {
			return err
		}
		var st controlapi.StatsResponse
		if err := c.getJSON(fmt.Sprintf("/api/v1/ports/%d/stats", id), &st); err != nil {
			return err
		}
		fmt.Printf("Port %d statistics:\n", st.PortID)
		fmt.Printf("  %-14s %d\n", "RX pps:", st.RxPps)
		fmt.Printf("  %-14s %d\n", "RX bps:", st.RxBps)
		fmt.Printf("  %-14s %d\n", "TX pps:", st.TxPps)
		fmt.Printf("  %-14s %d\n", "TX bps:", st.TxBps)
		fmt.Printf("  %-14s %d\n", "RX errors:", st.RxErrors)
		fmt.Printf("  %-14s %d\n", "RX drops:", st.RxDrops)
		fmt.Printf("  %-14s %s\n", "Link:", st.Link)
		return nil

	default:
		return fmt.Errorf("unknown show target: %s", args[0])
	}
}

func (c *CLI) handleStream(args []string) error {
	if len(args) == 0 {
		fmt.Println("stream:")
		fmt.Println("  add <id> <file.json>   Add a stream from a JSON spec file")
		fmt.Println("  clear <id>             Remove all streams from a port")
		return nil
	}

	switch args[0] {
	case "add":
		if len(args) < 3 {
			return fmt.Errorf("usage: stream add <id> <file.json>")
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port id: %s", args[1])
		}
		body, err := os.ReadFile(args[2])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[2], err)
		}
		return c.postJSON(fmt.Sprintf("/api/v1/ports/%d/streams", id), body, nil)

	case "clear":
		id, err := requirePortID(args[1:])
		if err != nil {
			return err
		}
		return c.do(http.MethodDelete, fmt.Sprintf("/api/v1/ports/%d/streams", id), nil, nil)

	default:
		return fmt.Errorf("unknown stream target: %s", args[0])
	}
}

func (c *CLI) handleTransmit(args []string) error {
	if len(args) < 2 {
		fmt.Println("transmit:")
		fmt.Println("  start <id>   Start transmit on a port")
		fmt.Println("  stop <id>    Stop transmit on a port")
		fmt.Println("  status <id>  Show whether a port is transmitting")
		return nil
	}
	id, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid port id: %s", args[1])
	}

	switch args[0] {
	case "start":
		return c.postJSON(fmt.Sprintf("/api/v1/ports/%d/transmit/start", id), nil, nil)
	case "stop":
		return c.postJSON(fmt.Sprintf("/api/v1/ports/%d/transmit/stop", id), nil, nil)
	case "status":
		var resp struct {
			Transmitting bool `json:"transmitting"`
		}
		if err := c.getJSON(fmt.Sprintf("/api/v1/ports/%d/transmit", id), &resp); err != nil {
			return err
		}
		fmt.Printf("Port %d transmitting: %t\n", id, resp.Transmitting)
		return nil
	default:
		return fmt.Errorf("unknown transmit target: %s", args[0])
	}
}

func (c *CLI) handleCapture(args []string) error {
	if len(args) < 2 {
		fmt.Println("capture:")
		fmt.Println("  start <id>   Arm packet capture on a port")
		fmt.Println("  stop <id>    Disarm packet capture on a port")
		fmt.Println("  show <id>    Show captured frame count")
		return nil
	}
	id, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid port id: %s", args[1])
	}

	switch args[0] {
	case "start":
		return c.postJSON(fmt.Sprintf("/api/v1/ports/%d/capture/start", id), nil, nil)
	case "stop":
		return c.postJSON(fmt.Sprintf("/api/v1/ports/%d/capture/stop", id), nil, nil)
	case "show":
		var frames [][]byte
		if err := c.getJSON(fmt.Sprintf("/api/v1/ports/%d/capture/data", id), &frames); err != nil {
			return err
		}
		fmt.Printf("%d frames captured\n", len(frames))
		return nil
	default:
		return fmt.Errorf("unknown capture target: %s", args[0])
	}
}

func requirePortID(args []string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("missing port id")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid port id: %s", args[0])
	}
	return id, nil
}

func (c *CLI) getJSON(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *CLI) postJSON(path string, body []byte, out any) error {
	return c.do(http.MethodPost, path, body, out)
}

// do issues an HTTP request against the control API and decodes its
// Response envelope, returning Data unmarshalled into out (if non-nil)
// or Error as a Go error.
func (c *CLI) do(method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env controlapi.Response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return fmt.Errorf("%s", env.Error)
	}
	if out == nil || env.Data == nil {
		return nil
	}
	raw, err := json.Marshal(env.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (c *CLI) showHelp() {
	fmt.Println("Operational commands:")
	fmt.Println("  show ports                   List all ports")
	fmt.Println("  show port <id>               Show one port's summary")
	fmt.Println("  show link <id>                Show a port's link state")
	fmt.Println("  show stats <id>               Show a port's traffic rates")
	fmt.Println("  stream add <id> <file.json>   Add a stream from a JSON spec file")
	fmt.Println("  stream clear <id>             Remove all streams from a port")
	fmt.Println("  transmit start <id>           Start transmit on a port")
	fmt.Println("  transmit stop <id>            Stop transmit on a port")
	fmt.Println("  transmit status <id>          Show whether a port is transmitting")
	fmt.Println("  capture start <id>            Arm packet capture on a port")
	fmt.Println("  capture stop <id>             Disarm packet capture on a port")
	fmt.Println("  capture show <id>             Show captured frame count")
	fmt.Println("  quit                          Exit the shell")
}
