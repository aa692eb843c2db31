package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/repositories"
	"github.com/desertthunder/mixtape/internal/shared"
	tu "github.com/desertthunder/mixtape/internal/testing"
	_ "github.com/mattn/go-sqlite3"
	"github.com/urfave/cli/v3"
)

type runnerFixture struct {
	runner *Runner
	output *bytes.Buffer
	users  *repositories.UserRepository
	music  *repositories.MusicRepository
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config: shared.DefaultConfig(),
		Logger: shared.NewLogger(io.Discard),
		Output: output,
		DB:     db,
	})

	return &runnerFixture{
		runner: runner,
		output: output,
		users:  repositories.NewUserRepository(db),
		music:  repositories.NewMusicRepository(db),
	}
}

// run invokes the full command tree the way main does.
func (f *runnerFixture) run(t *testing.T, args ...string) error {
	t.Helper()
	app := &cli.Command{
		Name:     "mixtape",
		Commands: f.runner.register(),
	}
	return app.Run(context.Background(), append([]string{"mixtape"}, args...))
}

func (f *runnerFixture) createUser(t *testing.T, email, name string) *models.User {
	t.Helper()
	user := models.NewUser(0, email, name)
	if err := f.users.Create(user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}

			runner := NewRunner(RunnerOpts{Config: config, Logger: logger, Output: output})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.config == nil {
				t.Fatal("expected default config")
			}
			if runner.config.Database.Path == "" {
				t.Error("expected default database path")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.logger == nil {
				t.Error("expected default logger")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.output != os.Stdout {
				t.Error("expected stdout output")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		want := []string{"setup", "users", "serve", "spotify"}
		if len(commands) != len(want) {
			t.Fatalf("expected %d commands, got %d", len(want), len(commands))
		}
		for i, name := range want {
			if commands[i].Name != name {
				t.Errorf("expected command %q at %d, got %q", name, i, commands[i].Name)
			}
		}
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(output.String(), "\"key\": \"value\"") {
				t.Errorf("expected indented JSON, got %q", output.String())
			}
		})

		t.Run("handles marshal error", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
			if err := runner.writeJSON(make(chan int), false); err == nil {
				t.Error("expected marshal error")
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
			if err := runner.writeJSON("data", false); err == nil {
				t.Error("expected write error")
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("hello %s\n", "there"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if output.String() != "hello there\n" {
			t.Errorf("unexpected output %q", output.String())
		}

		runner = NewRunner(RunnerOpts{Output: &tu.FWriter{}})
		if err := runner.writePlain("boom"); err == nil {
			t.Error("expected write error")
		}
	})

	t.Run("resolveUser", func(t *testing.T) {
		f := newRunnerFixture(t)
		user := f.createUser(t, "ada@example.com", "Ada")
		db, _ := f.runner.database()

		t.Run("by id", func(t *testing.T) {
			got, err := f.runner.resolveUser(db, user.ID())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Email() != "ada@example.com" {
				t.Errorf("unexpected user %q", got.Email())
			}
		})

		t.Run("by email", func(t *testing.T) {
			got, err := f.runner.resolveUser(db, "ada@example.com")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ID() != user.ID() {
				t.Errorf("unexpected user %q", got.ID())
			}
		})

		t.Run("missing identifier", func(t *testing.T) {
			if _, err := f.runner.resolveUser(db, ""); !errors.Is(err, shared.ErrMissingArgument) {
				t.Errorf("expected ErrMissingArgument, got %v", err)
			}
		})

		t.Run("unknown identifier", func(t *testing.T) {
			if _, err := f.runner.resolveUser(db, "nobody@example.com"); err == nil {
				t.Error("expected lookup error")
			}
		})
	})
}

func TestUserCommands(t *testing.T) {
	t.Run("create then list", func(t *testing.T) {
		f := newRunnerFixture(t)

		if err := f.run(t, "users", "create", "--email", "ada@example.com", "--name", "Ada"); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if !strings.Contains(f.output.String(), "ada@example.com") {
			t.Errorf("expected confirmation, got %q", f.output.String())
		}

		f.output.Reset()
		if err := f.run(t, "users", "list"); err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if !strings.Contains(f.output.String(), "Ada") {
			t.Errorf("expected listing, got %q", f.output.String())
		}
	})

	t.Run("create defaults name to email local part", func(t *testing.T) {
		f := newRunnerFixture(t)

		if err := f.run(t, "users", "create", "--email", "grace@example.com"); err != nil {
			t.Fatalf("create failed: %v", err)
		}

		user, err := f.users.GetByEmail("grace@example.com")
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if user.Name() != "grace" {
			t.Errorf("expected name %q, got %q", "grace", user.Name())
		}
	})

	t.Run("list as JSON", func(t *testing.T) {
		f := newRunnerFixture(t)
		f.createUser(t, "ada@example.com", "Ada")

		if err := f.run(t, "users", "list", "--json"); err != nil {
			t.Fatalf("list failed: %v", err)
		}

		var rows []map[string]any
		if err := json.Unmarshal(f.output.Bytes(), &rows); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("expected 1 row, got %d", len(rows))
		}
		if rows[0]["email"] != "ada@example.com" {
			t.Errorf("unexpected row %v", rows[0])
		}
	})

	t.Run("list with no accounts prints hint", func(t *testing.T) {
		f := newRunnerFixture(t)
		if err := f.run(t, "users", "list"); err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if !strings.Contains(f.output.String(), "No accounts yet") {
			t.Errorf("expected hint, got %q", f.output.String())
		}
	})
}

func TestRecommendCommand(t *testing.T) {
	seed := func(t *testing.T, f *runnerFixture, userID string) {
		t.Helper()
		batch := repositories.Batch{
			Tracks: []models.Track{
				{ID: "t1", Name: "Opener", DurationMS: 215000, Artists: []models.Artist{{ID: "a1", Name: "First Artist"}}},
				{ID: "t2", Name: "Closer", DurationMS: 180000, Artists: []models.Artist{{ID: "a1", Name: "First Artist"}}},
			},
			Artists: []models.Artist{{ID: "a1", Name: "First Artist"}},
			Associations: []models.Association{
				{UserID: userID, ItemID: "t1", Kind: models.KindSavedTrack, SyncedAt: time.Now().UTC()},
				{UserID: userID, ItemID: "t2", Kind: models.KindPlaylistTrack, SyncedAt: time.Now().UTC()},
			},
		}
		if _, err := f.music.CommitBatch(batch); err != nil {
			t.Fatalf("failed to seed history: %v", err)
		}
	}

	t.Run("text output orders by score", func(t *testing.T) {
		f := newRunnerFixture(t)
		user := f.createUser(t, "ada@example.com", "Ada")
		seed(t, f, user.ID())

		if err := f.run(t, "spotify", "recommend", "--user", user.ID()); err != nil {
			t.Fatalf("recommend failed: %v", err)
		}

		output := f.output.String()
		opener := strings.Index(output, "Opener")
		closer := strings.Index(output, "Closer")
		if opener < 0 || closer < 0 {
			t.Fatalf("expected both tracks in output, got %q", output)
		}
		if opener > closer {
			t.Error("expected saved track ranked above playlist track")
		}
	})

	t.Run("JSON output parses", func(t *testing.T) {
		f := newRunnerFixture(t)
		user := f.createUser(t, "ada@example.com", "Ada")
		seed(t, f, user.ID())

		if err := f.run(t, "spotify", "recommend", "--user", user.Email(), "--format", "json"); err != nil {
			t.Fatalf("recommend failed: %v", err)
		}

		var result struct {
			Tracks []struct {
				Score float64
			}
		}
		if err := json.Unmarshal(f.output.Bytes(), &result); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if len(result.Tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(result.Tracks))
		}
	})

	t.Run("unknown format rejected", func(t *testing.T) {
		f := newRunnerFixture(t)
		user := f.createUser(t, "ada@example.com", "Ada")
		seed(t, f, user.ID())

		err := f.run(t, "spotify", "recommend", "--user", user.ID(), "--format", "yaml")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("empty history reports no candidates", func(t *testing.T) {
		f := newRunnerFixture(t)
		user := f.createUser(t, "ada@example.com", "Ada")

		err := f.run(t, "spotify", "recommend", "--user", user.ID())
		if !errors.Is(err, shared.ErrNoCandidates) {
			t.Errorf("expected ErrNoCandidates, got %v", err)
		}
	})
}

func TestSyncCommand(t *testing.T) {
	t.Run("rejects unknown kind", func(t *testing.T) {
		f := newRunnerFixture(t)
		user := f.createUser(t, "ada@example.com", "Ada")

		if err := f.run(t, "spotify", "sync", "--user", user.ID(), "--kind", "liked-videos"); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("rejects unknown time range", func(t *testing.T) {
		f := newRunnerFixture(t)
		user := f.createUser(t, "ada@example.com", "Ada")

		err := f.run(t, "spotify", "sync", "--user", user.ID(), "--time-range", "eternal")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("requires connected account", func(t *testing.T) {
		f := newRunnerFixture(t)
		f.runner.config.Credentials.Spotify.ClientID = "id"
		f.runner.config.Credentials.Spotify.ClientSecret = "secret"
		user := f.createUser(t, "ada@example.com", "Ada")

		err := f.run(t, "spotify", "sync", "--user", user.ID())
		if err == nil {
			t.Fatal("expected sync to fail without stored credentials")
		}
		if !errors.Is(err, shared.ErrSyncIncomplete) && !errors.Is(err, shared.ErrNotConnected) {
			t.Errorf("expected a connection failure, got %v", err)
		}
	})
}
