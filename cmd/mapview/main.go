package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vtmaps/mapview/internal/compositor"
	"github.com/vtmaps/mapview/internal/config"
	"github.com/vtmaps/mapview/internal/logger"
	"github.com/vtmaps/mapview/internal/render"
	"github.com/vtmaps/mapview/internal/server"
	"github.com/vtmaps/mapview/internal/source"
	"github.com/vtmaps/mapview/internal/style"
)

// Options defines all CLI flags and env vars for the mapview server.
// Flags: --host, --port, --data-dir, --config
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_CONFIG
type Options struct {
	Host    string `doc:"Host to bind to" default:"0.0.0.0"`
	Port    int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir string `doc:"Directory for geo data files" default:".data"`
	Config  string `doc:"Path to viewer config (JSON or YAML)" short:"c" default:"viewer.json"`
}

func newServer(opts *Options) (*server.Server, error) {
	return server.New(server.Config{
		Host:       opts.Host,
		Port:       fmt.Sprintf("%d", opts.Port),
		DataDir:    opts.DataDir,
		ConfigPath: opts.Config,
	}, logger.L())
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		hooks.OnStart(func() {
			srv, err := newServer(opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer srv.Close()

			srv.Load(context.Background())

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("mapview API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Config:  %s\n", opts.Config)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			if err := http.ListenAndServe(addr, srv); err != nil {
				fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
				os.Exit(1)
			}
		})
	})

	cli.Root().Use = "mapview"
	cli.Root().Short = "Configuration-driven map rendering and selection server"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, err := newServer(opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// compose subcommand: load everything offline and print the composed
	// paint state as JSON
	composeCmd := &cobra.Command{
		Use:   "compose",
		Short: "Load all layers and print composed paint state as JSON",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			if err := runCompose(opts); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}),
	}
	cli.Root().AddCommand(composeCmd)

	cli.Run()
}

// composeLayer is one layer in the compose command's output.
type composeLayer struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	ZIndex   int              `json:"zIndex"`
	Features []composeFeature `json:"features"`
}

type composeFeature struct {
	Feature string              `json:"feature"`
	Attrs   style.Attrs         `json:"attrs"`
	Tooltip []render.TooltipRow `json:"tooltip,omitempty"`
}

func runCompose(opts *Options) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}

	log := logger.L()
	sink := render.NewStateSink()
	fetcher := source.New(opts.DataDir, nil)
	comp := compositor.New(fetcher, sink, cfg.Selection.IdentityFields, log)

	result := comp.LoadAll(context.Background(), cfg.Layers)

	out := struct {
		Title    string            `json:"title,omitempty"`
		Bound    any               `json:"bound,omitempty"`
		Layers   []composeLayer    `json:"layers"`
		Failures map[string]string `json:"failures,omitempty"`
	}{
		Title:    cfg.Title,
		Failures: make(map[string]string),
	}

	if result.HasBound {
		out.Bound = map[string]float64{
			"minLon": result.Bound.Min[0], "minLat": result.Bound.Min[1],
			"maxLon": result.Bound.Max[0], "maxLat": result.Bound.Max[1],
		}
	}
	for id, loadErr := range result.Failures {
		out.Failures[id] = loadErr.Error()
	}
	for _, layer := range result.Layers {
		cl := composeLayer{
			ID:     layer.Def.ID,
			Name:   layer.Def.Name,
			ZIndex: layer.Def.ZIndex,
		}
		for _, h := range layer.Handles {
			attrs, _ := sink.Current(h.ID)
			cl.Features = append(cl.Features, composeFeature{
				Feature: h.Feature.ID,
				Attrs:   attrs,
				Tooltip: sink.Tooltip(h.ID),
			})
		}
		out.Layers = append(out.Layers, cl)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
