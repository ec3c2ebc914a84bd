package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"feedsync/internal/config"
	"feedsync/internal/fetch"
	"feedsync/internal/importer"
	"feedsync/internal/process"
	"feedsync/internal/schedule"
	"feedsync/internal/store"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	app := &cli.App{
		Name:  "feedsync",
		Usage: "Fetch, deduplicate and store RSS/Atom feeds",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the config file",
				EnvVars: []string{"FEEDSYNC_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "SQLite database file location (overrides config)",
				EnvVars: []string{"FEEDSYNC_DB"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level: debug, info, warn, error",
				Value:   "info",
				EnvVars: []string{"FEEDSYNC_LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			if level, err := zerolog.ParseLevel(c.String("log-level")); err == nil {
				zerolog.SetGlobalLevel(level)
			}
			return nil
		},
		Commands: []*cli.Command{
			addCmd(),
			removeCmd(),
			listCmd(),
			itemsCmd(),
			readCmd(),
			syncCmd(),
			importCmd(),
			scheduleCmd(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// openStore resolves the database location from the --db flag or the
// config file and opens it.
func openStore(c *cli.Context) (*store.DB, error) {
	dbPath := c.String("db")
	if dbPath == "" {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return nil, err
		}
		dbPath = cfg.DatabasePath
	}
	return store.Open(dbPath)
}

func newSyncer(db *store.DB, workers int) *process.Syncer {
	return process.NewSyncer(db, fetch.New(0), workers)
}

func addCmd() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Add a feed by URL",
		ArgsUsage: "<url>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one URL argument")
			}
			url := c.Args().First()

			db, err := openStore(c)
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Printf("Fetching feed from %s...\n", url)
			feed, err := newSyncer(db, 0).AddFeed(c.Context, url)
			if err != nil {
				return err
			}
			fmt.Printf("Added feed: %s\n", feed.DisplayTitle())
			return nil
		},
	}
}

func removeCmd() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Remove a feed and all of its items",
		ArgsUsage: "<url>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one URL argument")
			}
			url := c.Args().First()

			db, err := openStore(c)
			if err != nil {
				return err
			}
			defer db.Close()

			feed, err := db.GetFeedByURL(c.Context, url)
			if errors.Is(err, store.ErrFeedNotFound) {
				fmt.Printf("Feed not found: %s\n", url)
				return nil
			}
			if err != nil {
				return err
			}

			if _, err := newSyncer(db, 0).RemoveFeed(c.Context, url); err != nil {
				return err
			}
			fmt.Printf("Removed feed: %s\n", feed.DisplayTitle())
			return nil
		},
	}
}

func listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List registered feeds",
		Action: func(c *cli.Context) error {
			db, err := openStore(c)
			if err != nil {
				return err
			}
			defer db.Close()

			feeds, err := db.ListFeeds(c.Context)
			if err != nil {
				return err
			}
			if len(feeds) == 0 {
				fmt.Println("No feeds found. Add one with: feedsync add <url>")
				return nil
			}

			fmt.Printf("Feeds (%d)\n\n", len(feeds))
			for _, feed := range feeds {
				count, err := db.CountItems(c.Context, feed.ID)
				if err != nil {
					return err
				}
				fmt.Printf("  [%d] %s (%d items)\n", feed.ID, feed.DisplayTitle(), count)
				fmt.Printf("      URL: %s\n\n", feed.URL)
			}
			return nil
		},
	}
}

func itemsCmd() *cli.Command {
	return &cli.Command{
		Name:      "items",
		Usage:     "List items of a feed, newest first",
		ArgsUsage: "<feed-id>",
		Action: func(c *cli.Context) error {
			feedID, err := parseIDArg(c, "feed-id")
			if err != nil {
				return err
			}

			db, err := openStore(c)
			if err != nil {
				return err
			}
			defer db.Close()

			items, err := db.ListItems(c.Context, feedID)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("No items. Run: feedsync sync")
				return nil
			}

			for _, item := range items {
				marker := " "
				if item.IsRead {
					marker = "*"
				}
				title := item.Title.String
				if title == "" {
					title = "(no title)"
				}
				fmt.Printf("%s [%d] %s\n", marker, item.ID, title)
				if item.Link.Valid {
					fmt.Printf("      %s\n", item.Link.String)
				}
				if item.Published.Valid {
					fmt.Printf("      %s\n", time.Unix(item.Published.Int64, 0).Format("2006-01-02 15:04"))
				}
			}
			return nil
		},
	}
}

func readCmd() *cli.Command {
	return &cli.Command{
		Name:      "read",
		Usage:     "Mark an item as read",
		ArgsUsage: "<item-id>",
		Action: func(c *cli.Context) error {
			itemID, err := parseIDArg(c, "item-id")
			if err != nil {
				return err
			}

			db, err := openStore(c)
			if err != nil {
				return err
			}
			defer db.Close()

			return db.MarkRead(c.Context, itemID)
		},
	}
}

func syncCmd() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Fetch all feeds and store new items",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Number of concurrent feed fetches",
				Value:   4,
				EnvVars: []string{"FEEDSYNC_WORKERS"},
			},
		},
		Action: func(c *cli.Context) error {
			db, err := openStore(c)
			if err != nil {
				return err
			}
			defer db.Close()

			summary, err := newSyncer(db, c.Int("workers")).SyncAll(c.Context)
			if err != nil {
				return err
			}
			if len(summary.Feeds) == 0 {
				fmt.Println("No feeds to sync. Add one with: feedsync add <url>")
				return nil
			}

			for _, result := range summary.Feeds {
				if result.Err != nil {
					fmt.Printf("%s ... failed: %v\n", result.Feed.DisplayTitle(), result.Err)
					continue
				}
				fmt.Printf("%s ... (%d new items)\n", result.Feed.DisplayTitle(), result.NewItems)
			}
			fmt.Printf("\nSync complete. %d new items added.\n", summary.TotalNew)
			return nil
		},
	}
}

func importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Add feeds in bulk from a CSV file with a 'url' column",
		ArgsUsage: "<csv-file>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one file argument")
			}

			db, err := openStore(c)
			if err != nil {
				return err
			}
			defer db.Close()

			summary, err := importer.New(newSyncer(db, 0)).ImportFeeds(c.Context, c.Args().First())
			if err != nil {
				return err
			}

			fmt.Printf("Imported %d feeds successfully\n", summary.Imported)
			if len(summary.Errors) > 0 {
				fmt.Printf("Encountered %d errors:\n", len(summary.Errors))
				for _, e := range summary.Errors {
					fmt.Printf("  - %s\n", e)
				}
			}
			return nil
		},
	}
}

func scheduleCmd() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Run sync on a recurring schedule via crontab",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "minutes",
				Aliases: []string{"m"},
				Usage:   "Interval in minutes, valid range is 1..=1440 (24 hours)",
				Value:   60,
			},
		},
		Action: func(c *cli.Context) error {
			exePath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("failed to resolve executable path: %w", err)
			}

			manager := schedule.NewManager(exePath)
			human, err := manager.Install(c.Context, c.Int("minutes"))
			if err != nil {
				return err
			}
			fmt.Printf("Scheduled feedsync sync to run %s\n", human)
			return nil
		},
	}
}

func parseIDArg(c *cli.Context, name string) (int64, error) {
	if c.NArg() != 1 {
		return 0, fmt.Errorf("expected exactly one %s argument", name)
	}
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, c.Args().First())
	}
	return id, nil
}
