package cli

import (
	"context"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/OsoPanda1/isabella/pkg/service/mcp"
	"github.com/urfave/cli/v3"
)

// version is reported to MCP clients
var version = "dev"

func mcpCommand() *cli.Command {
	var (
		cfg    config
		userID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user-id",
			Aliases:     []string{"u"},
			Usage:       "User whose memories the tools act on",
			Sources:     cli.EnvVars("ISABELLA_USER_ID"),
			Destination: &userID,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve memory tools to an MCP client over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}

			rt, err := cfg.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			server, err := mcp.NewServer(rt.service, model.UserID(userID), version)
			if err != nil {
				return err
			}
			return server.Run(ctx)
		},
	}
}
