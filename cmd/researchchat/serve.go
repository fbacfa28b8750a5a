package main

import (
	"github.com/spf13/cobra"

	"github.com/smallnest/researchchat/log"
	"github.com/smallnest/researchchat/server"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(a.registry,
				server.WithMetrics(a.metrics),
				server.WithLogger(log.Named(logger, "server")),
				server.WithUploads(cfg.RAG.UploadDir, cfg.RAG.MaxFileSize),
				server.WithEventBuffer(cfg.Server.EventBuffer),
				server.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
				server.WithSettings(server.Settings{
					Provider:        cfg.LLM.Provider,
					Model:           cfg.LLM.Model,
					Temperature:     cfg.LLM.Temperature,
					MaxTokens:       cfg.LLM.MaxTokens,
					RAGEnabled:      cfg.RAG.Enabled,
					ConfirmResearch: cfg.Chat.ConfirmResearch,
				}),
			)
			return srv.ListenAndServe(cmd.Context(), cfg.Server.Addr, cfg.Server.ShutdownTimeout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides ADDR")
	return cmd
}
