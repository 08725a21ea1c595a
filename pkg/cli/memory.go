package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/OsoPanda1/isabella/pkg/usecase/vault"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func memoryCommand() *cli.Command {
	var (
		cfg    config
		userID string
	)

	// Shared by every subcommand
	flags := func(extra ...cli.Flag) []cli.Flag {
		out := append([]cli.Flag{
			&cli.StringFlag{
				Name:        "user-id",
				Aliases:     []string{"u"},
				Usage:       "Owner of the memories",
				Sources:     cli.EnvVars("ISABELLA_USER_ID"),
				Destination: &userID,
				Required:    true,
			},
		}, extra...)
		return append(out, globalFlags(&cfg)...)
	}

	run := func(fn vaultFunc) cli.ActionFunc {
		return func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := repo.Close(); err != nil {
					fmt.Fprintf(c.Root().ErrWriter, "failed to close repository: %v\n", err)
				}
			}()

			v, err := vault.New(repo, model.UserID(userID))
			if err != nil {
				return err
			}
			return fn(ctx, v, c)
		}
	}

	return &cli.Command{
		Name:  "memory",
		Usage: "Inspect and edit a user's memory vault",
		Commands: []*cli.Command{
			memoryRememberCommand(flags, run),
			memoryRecallCommand(flags, run),
			memorySearchCommand(flags, run),
			memoryForgetCommand(flags, run),
			{
				Name:  "prefs",
				Usage: "Show merged preferences",
				Flags: flags(),
				Action: run(func(ctx context.Context, v *vault.Vault, c *cli.Command) error {
					prefs, err := v.Preferences(ctx)
					if err != nil {
						return err
					}
					return printJSON(c.Root().Writer, prefs)
				}),
			},
			memoryMoodCommand(flags, run),
			memoryDiaryCommand(flags, run),
			memoryClearCommand(flags, run),
		},
	}
}

type (
	flagsFunc  func(extra ...cli.Flag) []cli.Flag
	vaultFunc  func(ctx context.Context, v *vault.Vault, c *cli.Command) error
	actionFunc func(fn vaultFunc) cli.ActionFunc
)

func memoryRememberCommand(flags flagsFunc, run actionFunc) *cli.Command {
	var (
		memoryType string
		contentRaw string
		pairs      []string
		importance int64
		emotion    string
		tags       []string
		expiresIn  time.Duration
	)

	return &cli.Command{
		Name:  "remember",
		Usage: "Store a memory",
		Flags: flags(
			&cli.StringFlag{
				Name:        "type",
				Aliases:     []string{"t"},
				Usage:       "preference, fact, emotion, goal or relationship",
				Destination: &memoryType,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "content",
				Usage:       "Content as a JSON object",
				Destination: &contentRaw,
			},
			&cli.StringSliceFlag{
				Name:        "set",
				Usage:       "Content entry as key=value (repeatable)",
				Destination: &pairs,
			},
			&cli.IntFlag{
				Name:        "importance",
				Aliases:     []string{"i"},
				Usage:       "Importance from 1 to 5",
				Value:       int64(model.ImportanceDefault),
				Destination: &importance,
			},
			&cli.StringFlag{
				Name:        "emotion",
				Usage:       "Mood attached to the memory",
				Destination: &emotion,
			},
			&cli.StringSliceFlag{
				Name:        "tag",
				Usage:       "Related entity (repeatable)",
				Destination: &tags,
			},
			&cli.DurationFlag{
				Name:        "expires-in",
				Usage:       "Soft expiry relative to now",
				Destination: &expiresIn,
			},
		),
		Action: run(func(ctx context.Context, v *vault.Vault, c *cli.Command) error {
			content, err := parseContent(contentRaw, pairs)
			if err != nil {
				return err
			}

			imp := model.Importance(importance)
			opts := &vault.RememberOptions{
				Importance:      &imp,
				EmotionContext:  model.Emotion(emotion),
				RelatedEntities: tags,
			}
			if expiresIn > 0 {
				expiresAt := time.Now().Add(expiresIn)
				opts.ExpiresAt = &expiresAt
			}

			record, err := v.Remember(ctx, model.MemoryType(memoryType), content, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "Memory stored: %s\n", record.ID)
			return nil
		}),
	}
}

func memoryRecallCommand(flags flagsFunc, run actionFunc) *cli.Command {
	var (
		memoryType string
		limit      int64
	)

	return &cli.Command{
		Name:  "recall",
		Usage: "List memories, most important and most recent first",
		Flags: flags(
			&cli.StringFlag{
				Name:        "type",
				Aliases:     []string{"t"},
				Usage:       "Only this memory type",
				Destination: &memoryType,
			},
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "Maximum number of memories",
				Value:       vault.DefaultRecallLimit,
				Destination: &limit,
			},
		),
		Action: run(func(ctx context.Context, v *vault.Vault, c *cli.Command) error {
			if memoryType != "" {
				if err := model.MemoryType(memoryType).Validate(); err != nil {
					return err
				}
			}
			records, err := v.Recall(ctx, model.MemoryType(memoryType), int(limit))
			if err != nil {
				return err
			}
			printRecords(c.Root().Writer, records)
			return nil
		}),
	}
}

func memorySearchCommand(flags flagsFunc, run actionFunc) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find memories tagged with exactly the given entity",
		ArgsUsage: "<tag>",
		Flags:     flags(),
		Action: run(func(ctx context.Context, v *vault.Vault, c *cli.Command) error {
			tag := c.Args().First()
			if tag == "" {
				return goerr.New("tag is required")
			}
			records, err := v.Search(ctx, tag)
			if err != nil {
				return err
			}
			printRecords(c.Root().Writer, records)
			return nil
		}),
	}
}

func memoryForgetCommand(flags flagsFunc, run actionFunc) *cli.Command {
	return &cli.Command{
		Name:      "forget",
		Usage:     "Delete one memory",
		ArgsUsage: "<memory-id>",
		Flags:     flags(),
		Action: run(func(ctx context.Context, v *vault.Vault, c *cli.Command) error {
			id := c.Args().First()
			if id == "" {
				return goerr.New("memory ID is required")
			}
			deleted, err := v.Forget(ctx, model.MemoryID(id))
			if err != nil {
				return err
			}
			if !deleted {
				return goerr.Wrap(model.ErrMemoryNotFound, "nothing to forget", goerr.V("id", id))
			}
			fmt.Fprintf(c.Root().Writer, "Memory forgotten: %s\n", id)
			return nil
		}),
	}
}

func memoryMoodCommand(flags flagsFunc, run actionFunc) *cli.Command {
	var limit int64

	return &cli.Command{
		Name:  "mood",
		Usage: "Show recent moods from emotion memories",
		Flags: flags(
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "Maximum number of moods",
				Value:       vault.DefaultEmotionLimit,
				Destination: &limit,
			},
		),
		Action: run(func(ctx context.Context, v *vault.Vault, c *cli.Command) error {
			moods, err := v.EmotionalContext(ctx, int(limit))
			if err != nil {
				return err
			}
			return printJSON(c.Root().Writer, moods)
		}),
	}
}

func memoryDiaryCommand(flags flagsFunc, run actionFunc) *cli.Command {
	var (
		entryType  string
		emotion    string
		importance int64
		tags       []string
	)

	return &cli.Command{
		Name:      "diary",
		Usage:     "Write a diary entry",
		ArgsUsage: "<text>",
		Flags: flags(
			&cli.StringFlag{
				Name:        "entry-type",
				Usage:       "Kind of entry such as reflection or gratitude",
				Value:       "reflection",
				Destination: &entryType,
			},
			&cli.StringFlag{
				Name:        "emotion",
				Usage:       "Mood of the entry",
				Destination: &emotion,
			},
			&cli.IntFlag{
				Name:        "importance",
				Aliases:     []string{"i"},
				Usage:       "Importance from 1 to 5",
				Value:       int64(model.ImportanceDefault),
				Destination: &importance,
			},
			&cli.StringSliceFlag{
				Name:        "tag",
				Usage:       "Tag (repeatable)",
				Destination: &tags,
			},
		),
		Action: run(func(ctx context.Context, v *vault.Vault, c *cli.Command) error {
			text := strings.Join(c.Args().Slice(), " ")
			imp := model.Importance(importance)
			record, err := v.AddDiaryEntry(ctx, text, entryType, &vault.DiaryOptions{
				EmotionDetected: model.Emotion(emotion),
				Importance:      &imp,
				Tags:            tags,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "Diary entry stored: %s\n", record.ID)
			return nil
		}),
	}
}

func memoryClearCommand(flags flagsFunc, run actionFunc) *cli.Command {
	var yes bool

	return &cli.Command{
		Name:  "clear",
		Usage: "Irreversibly delete every memory of the user",
		Flags: flags(
			&cli.BoolFlag{
				Name:        "yes",
				Aliases:     []string{"y"},
				Usage:       "Confirm deletion",
				Destination: &yes,
			},
		),
		Action: run(func(ctx context.Context, v *vault.Vault, c *cli.Command) error {
			if !yes {
				return goerr.New("refusing to clear memories without --yes")
			}
			n, err := v.ClearAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "%d memories deleted\n", n)
			return nil
		}),
	}
}

// parseContent builds memory content from a JSON object and key=value pairs.
// Pairs override JSON keys.
func parseContent(raw string, pairs []string) (map[string]any, error) {
	content := make(map[string]any)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &content); err != nil {
			return nil, goerr.Wrap(err, "content must be a JSON object")
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, goerr.New("content entry must be key=value", goerr.V("entry", pair))
		}
		content[key] = value
	}
	if len(content) == 0 {
		return nil, goerr.New("content is required, use --content or --set")
	}
	return content, nil
}

func printRecords(w io.Writer, records []*model.MemoryRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No memories found")
		return
	}
	for _, r := range records {
		content, _ := json.Marshal(r.Content)
		fmt.Fprintf(w, "%s  %-12s  %d  %s  %s", r.ID, r.Type, r.Importance, r.CreatedAt.Format(time.DateTime), content)
		if len(r.RelatedEntities) > 0 {
			fmt.Fprintf(w, "  [%s]", strings.Join(r.RelatedEntities, ", "))
		}
		fmt.Fprintln(w)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return goerr.Wrap(err, "failed to write output")
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
