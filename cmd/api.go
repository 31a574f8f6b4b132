package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/secureview/internal/api"
	"github.com/secureview/internal/config"
	"github.com/secureview/internal/review"
)

// APICommand returns the CLI command for starting the API server
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the SecuReview API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			port := cfg.Server.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}
			fmt.Printf("Starting SecuReview API server on port %d...\n", port)

			server := api.NewServer(port, review.NewService(cfg))
			return server.Start()
		},
	}
}
