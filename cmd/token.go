/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chatify/apiserver/config"
	"github.com/chatify/apiserver/internal/handlers"
	"github.com/spf13/cobra"
)

var (
	tokenUser string
	tokenTTL  time.Duration
)

// tokenCmd prints a bearer token for a user id.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a JWT for a user id",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET is required")
		}
		if strings.TrimSpace(tokenUser) == "" {
			return errors.New("--user is required")
		}

		token, err := handlers.IssueToken(tokenUser, cfg.JWTSecret, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id to put in the subject claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
