package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jzx17/genproxy/internal/server"
	"github.com/jzx17/genproxy/pkg/gemini"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP proxy",
		Long: `Run the HTTP proxy.

Routes:
  POST /api/chat       {"prompt": "...", "systemPrompt": "..."}
  POST /api/generate   {"mode": "ideas", "input": {...}, "systemPrompt": "..."}
  POST /api/proxy      raw generateContent payload
  GET  /healthz
  GET  /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				a.cfg.Server.Addr = addr
			}

			srv, err := server.New(a.cfg.Server, a.client, a.catalog,
				server.WithMetrics(a.metrics),
				server.WithLogger(a.logger),
				server.WithRequestTimeout(a.cfg.Gemini.Timeout))
			if err != nil {
				return err
			}

			a.logger.Info("Starting genproxy",
				slog.String("version", Version),
				slog.String("model", a.client.Model()),
				slog.Bool("api_key_configured", a.client.HasAPIKey()),
				slog.Int("max_attempts", a.cfg.Retry.MaxAttempts))

			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config and GENPROXY_ADDR)")

	return cmd
}

func askCmd(flags *globalFlags) *cobra.Command {
	var (
		system string
		mode   string
		inputs map[string]string
	)

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send one prompt and print the answer",
		Example: `  genproxy ask "Qu'est-ce qu'une liste en Python ?"
  genproxy ask --mode ideas --input interest=jeux
  genproxy ask --mode explainer --input code='print("hi")'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			text, err := ask(cmd.Context(), a, args, mode, inputs, system)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&system, "system", "s", "", "System instruction")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Prompt mode (see 'genproxy modes')")
	cmd.Flags().StringToStringVarP(&inputs, "input", "i", nil, "Mode input as key=value (repeatable)")

	return cmd
}

// ask resolves the prompt from args or mode and sends it through the client
func ask(ctx context.Context, a *app, args []string, mode string, inputs map[string]string, system string) (string, error) {
	var promptText string
	switch {
	case mode != "":
		if len(args) > 0 {
			return "", fmt.Errorf("a prompt argument cannot be combined with --mode")
		}
		rendered, err := a.catalog.Render(mode, inputs)
		if err != nil {
			return "", err
		}
		promptText = rendered
	case len(args) == 1 && strings.TrimSpace(args[0]) != "":
		promptText = args[0]
	default:
		return "", fmt.Errorf("a prompt argument or --mode is required")
	}

	if a.cfg.Gemini.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Gemini.Timeout)
		defer cancel()
	}

	return a.client.Generate(ctx, gemini.NewTextRequest(promptText, system))
}

func modesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List the available prompt modes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range a.catalog.Names() {
				mode, _ := a.catalog.Get(name)
				var inputs []string
				for _, in := range mode.Inputs {
					label := in.Name
					if in.Required {
						label += "*"
					}
					inputs = append(inputs, label)
				}
				fmt.Fprintf(out, "%-10s %-50s %s\n", name, mode.Description, strings.Join(inputs, ", "))
			}
			return nil
		},
	}
}
