package cli

import (
	"context"
	"io"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

// Run executes the isabella command line. stdout and stderr default to the
// process streams when nil.
func Run(ctx context.Context, argv []string, stdout, stderr io.Writer) *Error {
	cmd := &cli.Command{
		Name:  "isabella",
		Usage: "Conversational companion with long-term memory",
		Commands: []*cli.Command{
			chatCommand(),
			memoryCommand(),
			serveCommand(),
			mcpCommand(),
		},
	}
	if stdout != nil {
		cmd.Writer = stdout
	}
	if stderr != nil {
		cmd.ErrWriter = stderr
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
