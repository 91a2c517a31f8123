package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"qsar/internal/auth"
)

var tokenHashOnly string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate an admin bearer token",
	Long: `Generate a bearer token for the admin endpoint and print its bcrypt
hash. Put the hash in admin.tokenHash (or QSAR_ADMIN_TOKENHASH); keep the
token itself secret, it is shown only once.

Examples:
  qsar token
  qsar token --hash qsar_sk_...   # hash an existing token`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenHashOnly, "hash", "", "Hash this token instead of generating one")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	token := tokenHashOnly
	if token == "" {
		var err error
		token, err = auth.GenerateToken()
		if err != nil {
			return err
		}
	} else if !auth.IsValidTokenFormat(token) {
		return fmt.Errorf("token %s is not a qsar token", auth.MaskToken(token))
	}

	hash, err := auth.HashToken(token)
	if err != nil {
		return err
	}

	if tokenHashOnly == "" {
		fmt.Fprintln(out, "Token (shown once):")
		fmt.Fprintf(out, "  %s\n\n", token)
	}
	fmt.Fprintln(out, "Hash for admin.tokenHash:")
	fmt.Fprintf(out, "  %s\n", hash)
	return nil
}
