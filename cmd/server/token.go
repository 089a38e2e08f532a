package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/example/campusdelivery/internal/config"
	"github.com/example/campusdelivery/internal/database"
	"github.com/example/campusdelivery/internal/models"
	"github.com/example/campusdelivery/internal/utils"
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id|phone>",
	Short: "Issue a bearer token for an existing user",
	Long: `Issue a bearer token for local development. Sign-in is handled by
another service in production.`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.IsProduction() {
		return errors.New("token command is disabled in production")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	var user models.User
	query := db.Where("phone = ?", args[0])
	if id, err := uuid.Parse(args[0]); err == nil {
		query = db.Where("id = ?", id)
	}
	if err := query.First(&user).Error; err != nil {
		return errors.Wrapf(err, "find user %s", args[0])
	}

	token, err := utils.GenerateToken(cfg.JWTSecret, user.ID, user.Role, cfg.TokenExpires)
	if err != nil {
		return errors.Wrap(err, "sign token")
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
