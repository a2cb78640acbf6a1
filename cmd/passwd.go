package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/l0n3m4n/exposerver/pkg/auth"
)

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Print a bcrypt hash for --auth-password-hash",
	Long: `Print a bcrypt hash of a password for use with --auth-password-hash or
auth.password_hash. Without -p the password is read from the first line of
standard input.`,
	Args: cobra.NoArgs,
	RunE: runPasswd,
}

func init() {
	rootCmd.AddCommand(passwdCmd)

	passwdCmd.Flags().StringP("password", "p", "", "Password to hash")
	passwdCmd.Flags().Int("cost", bcrypt.DefaultCost, "bcrypt cost")
}

func runPasswd(cmd *cobra.Command, args []string) error {
	password, _ := cmd.Flags().GetString("password")
	cost, _ := cmd.Flags().GetInt("cost")

	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return fmt.Errorf("invalid cost %d (min=%d max=%d)", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	if password == "" {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return errors.New("no password given, use -p or pipe it on stdin")
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := auth.HashPassword(password, cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
