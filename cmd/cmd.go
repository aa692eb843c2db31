// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "User id or email",
	}
}

// setupCommand initializes the config file and database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Initialize configuration and run database migrations",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// usersCommand handles local account management
func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage local accounts",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a local account",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "email",
						Usage:    "Account email",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name",
					},
					&cli.StringFlag{
						Name:  "password",
						Usage: "Optional account password",
					},
				},
				Action: r.UsersCreate,
			},
			{
				Name:  "list",
				Usage: "List local accounts",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.UsersList,
			},
		},
	}
}

// serveCommand runs the callback listener
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the authorization callback listener",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port",
			},
		},
		Action: r.Serve,
	}
}

// spotifyCommand handles operations against the connected streaming account
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Listening history operations",
		Commands: []*cli.Command{
			{
				Name:  "connect",
				Usage: "Authorize a user's streaming account via OAuth2",
				Flags: []cli.Flag{
					userFlag(),
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser authorization",
						Value: 0,
					},
					&cli.DurationFlag{
						Name:  "poll-interval",
						Usage: "How often to check for the authorization outcome",
						Value: 0,
					},
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening a browser",
					},
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Block until the authorization resolves",
					},
				},
				Action: r.SpotifyConnect,
			},
			{
				Name:  "sync",
				Usage: "Sync listening history into the local database",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringSliceFlag{
						Name:  "kind",
						Usage: "Kinds to sync (top-artists, top-tracks, saved-tracks, playlist-tracks); default all",
					},
					&cli.StringSliceFlag{
						Name:  "time-range",
						Usage: "Time ranges for ranked kinds (short, medium, long); default all",
					},
					&cli.IntFlag{
						Name:  "page-limit",
						Usage: "Items requested per remote page",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Association rows committed per transaction",
					},
					&cli.BoolFlag{
						Name:  "purge",
						Usage: "Delete prior associations for the selected kinds before fetching",
					},
					&cli.BoolFlag{
						Name:  "tui",
						Usage: "Show an interactive progress monitor",
					},
				},
				Action: r.SpotifySync,
			},
			{
				Name:  "recommend",
				Usage: "Score synced history into a recommendation list",
				Flags: []cli.Flag{
					userFlag(),
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum tracks to return",
						Value:   30,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, csv, markdown, json",
						Value:   "text",
					},
					&cli.StringFlag{
						Name:  "publish",
						Usage: "Publish the list to a new playlist with this name",
					},
					&cli.StringFlag{
						Name:  "playlist-id",
						Usage: "Publish into this existing playlist instead of creating one",
					},
					&cli.StringFlag{
						Name:  "description",
						Usage: "Playlist description when publishing",
					},
					&cli.BoolFlag{
						Name:  "public",
						Usage: "Make the published playlist public",
					},
				},
				Action: r.SpotifyRecommend,
			},
		},
	}
}
