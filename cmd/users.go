package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/repositories"
	"github.com/urfave/cli/v3"
)

// UsersCreate creates a local account.
func (r *Runner) UsersCreate(ctx context.Context, cmd *cli.Command) error {
	email := cmd.String("email")
	name := cmd.String("name")
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	db, err := r.database()
	if err != nil {
		return err
	}

	user := models.NewUser(0, email, name)
	if password := cmd.String("password"); password != "" {
		if err := user.SetPassword(password); err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
	}

	if err := repositories.NewUserRepository(db).Create(user); err != nil {
		return err
	}

	r.logger.Info("user created", "id", user.ID(), "email", user.Email())
	return r.writePlain("✓ Created %s (%s)\n", user.Email(), user.ID())
}

// UsersList prints every local account.
func (r *Runner) UsersList(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}

	users, err := repositories.NewUserRepository(db).List(nil)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		rows := make([]map[string]any, 0, len(users))
		for _, user := range users {
			rows = append(rows, map[string]any{
				"id":         user.ID(),
				"sequence":   user.Sequence(),
				"email":      user.Email(),
				"name":       user.Name(),
				"created_at": user.CreatedAt(),
			})
		}
		return r.writeJSON(rows, true)
	}

	if len(users) == 0 {
		return r.writePlain("No accounts yet. Create one with: users create --email you@example.com\n")
	}

	for _, user := range users {
		r.writePlain("%3d  %-36s  %-30s  %s\n", user.Sequence(), user.ID(), user.Email(), user.Name())
	}
	return nil
}
