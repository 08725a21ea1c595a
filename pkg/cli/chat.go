package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/OsoPanda1/isabella/pkg/usecase/assistant"
	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg            config
		userID         string
		conversationID string
		historyFile    string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user-id",
			Aliases:     []string{"u"},
			Usage:       "User to chat as",
			Sources:     cli.EnvVars("ISABELLA_USER_ID"),
			Destination: &userID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "conversation-id",
			Aliases:     []string{"c"},
			Usage:       "Conversation to continue; a new one is started when empty",
			Sources:     cli.EnvVars("ISABELLA_CONVERSATION_ID"),
			Destination: &conversationID,
		},
		&cli.StringFlag{
			Name:        "history-file",
			Usage:       "Readline history file",
			Value:       defaultHistoryFile(),
			Sources:     cli.EnvVars("ISABELLA_HISTORY_FILE"),
			Destination: &historyFile,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Talk with Isabella in the terminal",
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

			info, err := rt.service.StartSession(ctx, model.UserID(userID), model.ConversationID(conversationID))
			if err != nil {
				return goerr.Wrap(err, "failed to start session")
			}
			defer func() {
				if _, err := rt.service.EndSession(ctx, info.UserID, info.ConversationID); err != nil {
					fmt.Fprintf(c.Root().ErrWriter, "failed to end session: %v\n", err)
				}
			}()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "\033[36mtú>\033[0m ",
				HistoryFile:     historyFile,
				InterruptPrompt: "^C",
				EOFPrompt:       "/exit",
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			session := &chatSession{
				service:        rt.service,
				userID:         info.UserID,
				conversationID: info.ConversationID,
				assistantName:  cfg.assistantName,
				out:            rl.Stdout(),
				spinner:        spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(rl.Stderr())),
			}

			fmt.Fprintf(session.out, "Conversación %s iniciada. Escribe /exit para salir.\n", info.ConversationID)

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						break
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				quit, err := session.handle(ctx, line)
				if err != nil {
					return err
				}
				if quit {
					break
				}
			}

			fmt.Fprintln(session.out, "¡Hasta pronto!")
			return nil
		},
	}
}

func defaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".isabella_history")
}

// chatSession executes one REPL line at a time
type chatSession struct {
	service        *assistant.Service
	userID         model.UserID
	conversationID model.ConversationID
	assistantName  string
	out            io.Writer
	spinner        *spinner.Spinner
}

// handle runs a slash command or sends line as a message. quit is true on
// /exit.
func (s *chatSession) handle(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	switch line {
	case "/exit", "/quit":
		return true, nil

	case "/history":
		turns, err := s.service.History(s.userID, s.conversationID)
		if err != nil {
			return false, goerr.Wrap(err, "failed to get history")
		}
		if len(turns) == 0 {
			fmt.Fprintln(s.out, "(sin mensajes)")
		}
		for _, turn := range turns {
			name := "tú"
			if turn.Role == model.RoleAssistant {
				name = s.assistantName
			}
			fmt.Fprintf(s.out, "[%s] %s: %s\n", turn.CreatedAt.Format("15:04:05"), name, turn.Content)
		}
		return false, nil

	case "/clear":
		if err := s.service.ClearHistory(s.userID, s.conversationID); err != nil {
			return false, goerr.Wrap(err, "failed to clear history")
		}
		fmt.Fprintln(s.out, "Historial borrado.")
		return false, nil

	case "/prefs":
		prefs := s.service.Preferences(ctx, s.userID)
		if len(prefs) == 0 {
			fmt.Fprintln(s.out, "(sin preferencias)")
		}
		for _, key := range sortedKeys(prefs) {
			fmt.Fprintf(s.out, "%s: %v\n", key, prefs[key])
		}
		return false, nil

	case "/mood":
		moods := s.service.EmotionalContext(ctx, s.userID, 0)
		if len(moods) == 0 {
			fmt.Fprintln(s.out, "(sin emociones registradas)")
			return false, nil
		}
		names := make([]string, len(moods))
		for i, mood := range moods {
			names[i] = string(mood)
		}
		fmt.Fprintln(s.out, strings.Join(names, ", "))
		return false, nil
	}

	if strings.HasPrefix(line, "/") {
		fmt.Fprintln(s.out, "Comandos: /history, /clear, /prefs, /mood, /exit")
		return false, nil
	}

	if s.spinner != nil {
		s.spinner.Suffix = " " + s.assistantName + " está pensando..."
		s.spinner.Start()
	}
	result, err := s.service.ProcessMessage(ctx, s.userID, &model.DialogueInput{
		Message:        line,
		ConversationID: s.conversationID,
	})
	if s.spinner != nil {
		s.spinner.Stop()
	}
	if err != nil {
		return false, goerr.Wrap(err, "failed to process message")
	}

	fmt.Fprintf(s.out, "%s (%s)> %s\n", s.assistantName, result.Emotion, result.Message)
	if len(result.Suggestions) > 0 {
		fmt.Fprintf(s.out, "  sugerencias: %s\n", strings.Join(result.Suggestions, " | "))
	}
	return false, nil
}
