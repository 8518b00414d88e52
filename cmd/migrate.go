package cmd

import (
	"context"
	"fmt"

	"github.com/kendall-kelly/usta-go-api/config"
	"github.com/kendall-kelly/usta-go-api/logger"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func buildMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := bootstrap(); err != nil {
				return err
			}
			defer logger.Sync()

			if err := models.Migrate(config.GetDB()); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			logger.Log.Info("Database migration completed successfully")
			return nil
		},
	}
}

func buildPromoteCommand() *cobra.Command {
	var email, role string

	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Change the role of an existing user",
		Long:  "Change the role of an existing user. This is the only way to create admins.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			return promote(cmd.Context(), services.New(config.GetDB(), cfg, nil, nil), email, models.Role(role), cmd)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email of the user to promote")
	cmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "new role: admin, professional or customer")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func promote(ctx context.Context, svc *services.Services, email string, role models.Role, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	user, err := svc.Users.SetRole(ctx, email, role)
	if err != nil {
		return err
	}
	logger.Log.Info("User promoted", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Email, user.Role)
	return nil
}
