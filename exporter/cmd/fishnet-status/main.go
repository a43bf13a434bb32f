// Command fishnet-status prints the status of the configured fishnet servers.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/config"
	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/status"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fishnet-status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", config.DefaultPath, "path to fishnet_config.yaml")
	server := fs.String("server", "", "only query the server with this name")
	raw := fs.Bool("json", false, "print the raw JSON payload")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error loading configuration: %v\n", err)
		return 1
	}
	if len(cfg.Servers) == 0 {
		fmt.Fprintln(stderr, "no servers configured")
		return 1
	}

	servers := cfg.Servers
	if *server != "" {
		srv, ok := find(cfg.Servers, *server)
		if !ok {
			fmt.Fprintf(stderr, "server %q not found in configuration\n", *server)
			fmt.Fprintf(stderr, "available servers: %s\n", strings.Join(names(cfg.Servers), ", "))
			return 1
		}
		servers = []config.Server{srv}
	}

	f := status.NewFetcher(status.DefaultTimeout)
	for _, srv := range servers {
		fmt.Fprintf(stderr, "querying server %s...\n", srv.Name)
		if *raw {
			printJSON(ctx, f, srv, stdout, stderr, len(servers) > 1)
			continue
		}
		snap, err := f.Fetch(ctx, srv)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			snap = nil
		}
		render(stdout, srv.Name, snap)
	}
	return 0
}

// printJSON prints the payload indented. A failed fetch falls back to the
// "no data" report.
func printJSON(ctx context.Context, f *status.Fetcher, srv config.Server, stdout, stderr io.Writer, heading bool) {
	body, err := f.FetchRaw(ctx, srv)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		render(stdout, srv.Name, nil)
		return
	}
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "    "); err != nil {
		fmt.Fprintf(stderr, "status: %s: invalid JSON: %v\n", srv.Name, err)
		render(stdout, srv.Name, nil)
		return
	}
	if heading {
		fmt.Fprintf(stdout, "\n%s:\n", srv.Name)
	}
	out.WriteByte('\n')
	stdout.Write(out.Bytes()) //nolint:errcheck
}

func find(servers []config.Server, name string) (config.Server, bool) {
	for _, s := range servers {
		if s.Name == name {
			return s, true
		}
	}
	return config.Server{}, false
}

func names(servers []config.Server) []string {
	out := make([]string, len(servers))
	for i, s := range servers {
		out[i] = s.Name
	}
	return out
}
