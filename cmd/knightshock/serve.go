package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/knightshock/web/api"
)

var serveAddr string

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recorded sweeps over HTTP",
		Long: `Serves the result database as JSON under /api/sweeps. Live progress of a
sweep started with "sweep --serve" is streamed on /api/events (SSE) and
/api/ws (websocket) of that sweep's own server.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from [web] config)")
	rootCmd.AddCommand(serveCmd)
}

func listenAddr(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Web.Addr()
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	server := api.NewServer(store, listenAddr(serveAddr))
	server.SetLogger(log)
	return server.Start(ctx)
}
