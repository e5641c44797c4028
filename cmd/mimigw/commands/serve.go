package commands

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/let5sne/mimiclaw/pkg/config"
	"github.com/let5sne/mimiclaw/pkg/gateway"
	"github.com/let5sne/mimiclaw/pkg/metrics"
)

var serveFlags struct {
	configPath  string
	secretsPath string
	host        string
	port        int
	httpPort    int
	model       string
	device      string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway listeners",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(serveFlags.configPath, serveFlags.secretsPath)
		if err != nil {
			return err
		}

		// Flags override file values.
		if cmd.Flags().Changed("host") {
			cfg.WS.Host = serveFlags.host
			cfg.HTTP.Host = serveFlags.host
		}
		if cmd.Flags().Changed("port") {
			cfg.WS.Port = serveFlags.port
		}
		if cmd.Flags().Changed("http-port") {
			cfg.HTTP.Port = serveFlags.httpPort
		}
		if cmd.Flags().Changed("model") {
			cfg.STT.Model = serveFlags.model
		}
		if cmd.Flags().Changed("device") {
			cfg.STT.Device = serveFlags.device
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		gw, err := gateway.New(cfg,
			gateway.WithLogger(slog.Default()),
			gateway.WithMetrics(metrics.New()),
		)
		if err != nil {
			return err
		}

		slog.Info("starting gateway",
			"ws", cfg.WS.Addr(), "http", cfg.HTTP.Addr(),
			"stt_model", cfg.STT.Model, "stt_device", cfg.STT.Device,
			"vision", cfg.Vision.Enabled)
		return gw.Run(ctx)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveFlags.configPath, "config", "c", "", "config file path")
	f.StringVar(&serveFlags.secretsPath, "secrets", "", "secrets file path")
	f.StringVar(&serveFlags.host, "host", "0.0.0.0", "listen address for both listeners")
	f.IntVar(&serveFlags.port, "port", 8091, "device WebSocket port")
	f.IntVar(&serveFlags.httpPort, "http-port", 8090, "HTTP side-channel port")
	f.StringVar(&serveFlags.model, "model", "small", "speech model size (tiny/base/small/medium/large-v3)")
	f.StringVar(&serveFlags.device, "device", "auto", "speech compute device (cpu/cuda/auto)")

	rootCmd.AddCommand(serveCmd)
}
