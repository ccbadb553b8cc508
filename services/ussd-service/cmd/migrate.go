package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/normalize"
)

var migrateOpts struct {
	seed          bool
	templatesPath string
	adminPhone    string
	adminPassword string
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create indexes, seed message templates and bootstrap the first admin",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrations(cmd.Context())
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateOpts.seed, "seed", false, "upsert message templates from the YAML file")
	migrateCmd.Flags().StringVar(&migrateOpts.templatesPath, "templates", "", "template file (defaults to gateway.templatespath)")
	migrateCmd.Flags().StringVar(&migrateOpts.adminPhone, "admin-phone", "", "phone number of the admin to create")
	migrateCmd.Flags().StringVar(&migrateOpts.adminPassword, "admin-password", "", "password of the admin to create")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrations(ctx context.Context) error {
	log.Info("Running database migrations...")

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ensureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure indexes: %w", err)
	}
	log.Info("Indexes ensured")

	if migrateOpts.seed {
		path := migrateOpts.templatesPath
		if path == "" {
			path = cfg.Gateway.TemplatesPath
		}
		n, err := a.services.Reference.SeedTemplates(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to seed templates: %w", err)
		}
		log.WithField("path", path).WithField("inserted", n).Info("Message templates seeded")
	}

	if migrateOpts.adminPhone != "" {
		if err := bootstrapAdmin(ctx, a); err != nil {
			return err
		}
	}

	log.Info("Database migrations completed successfully")
	return nil
}

// bootstrapAdmin creates the admin account once; an existing user with the phone is left as is.
func bootstrapAdmin(ctx context.Context, a *app) error {
	phone := normalize.Phone(migrateOpts.adminPhone)
	existing, err := a.repos.users.FindByPhone(ctx, phone)
	if err != nil {
		return err
	}
	if existing != nil {
		log.WithField("user_id", existing.ID.Hex()).Info("Admin user already exists")
		return nil
	}

	admin := &models.User{
		Username:    "admin",
		Phone:       phone,
		Role:        models.RoleAdmin,
		Status:      models.UserStatusAccept,
		CanActivate: true,
		CanTopup:    true,
	}
	if err := a.services.Users.Create(ctx, admin, migrateOpts.adminPassword); err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	log.WithField("user_id", admin.ID.Hex()).Info("Admin user created")
	return nil
}
