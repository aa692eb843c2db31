package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/repositories"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer
	db     *sql.DB // injected in tests; opened lazily from config otherwise
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
	DB     *sql.DB
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
		db:     opts.DB,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, usersCommand, serveCommand, spotifyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// database returns the injected handle or opens one from config.
// Callers must not close the returned handle; the runner owns it.
func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	r.db = db
	return db, nil
}

// spotifyClient builds the remote client from configured credentials.
func (r *Runner) spotifyClient() (*services.SpotifyClient, error) {
	return services.NewSpotifyClient(r.config.Credentials.Spotify.Map())
}

// session binds the remote client to one user's stored credentials.
func (r *Runner) session(db *sql.DB, userID string) (*services.Session, error) {
	client, err := r.spotifyClient()
	if err != nil {
		return nil, err
	}
	return services.NewSession(client, repositories.NewCredentialRepository(db), userID), nil
}

// resolveUser accepts a user id or email and returns the user.
func (r *Runner) resolveUser(db *sql.DB, identifier string) (*models.User, error) {
	if identifier == "" {
		return nil, fmt.Errorf("%w: --user is required", shared.ErrMissingArgument)
	}

	users := repositories.NewUserRepository(db)
	if user, err := users.Get(identifier); err == nil {
		return user, nil
	}
	return users.GetByEmail(identifier)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
