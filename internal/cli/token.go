package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/toolserver/internal/config"
	"github.com/harun/toolserver/pkg/auth"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token signed with the configured secret",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "subject recorded in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime, 0 for no expiry")
	_ = tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Auth.SecretHex == "" {
		return fmt.Errorf("auth.secret_hex is not configured")
	}

	v, err := auth.NewValidator(cfg.Auth.SecretHex)
	if err != nil {
		return err
	}

	now := time.Now()
	claims := auth.Claims{
		auth.SubjectClaim: tokenSubject,
		"iat":             now.Unix(),
	}
	if tokenTTL > 0 {
		claims["exp"] = now.Add(tokenTTL).Unix()
	}

	token, err := v.Sign(claims)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
