package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
)

const minPasswordBytes = 8

// generatePassword returns n random bytes, URL-safe base64 encoded
func generatePassword(n int) (string, error) {
	if n < minPasswordBytes {
		return "", fmt.Errorf("length must be at least %d bytes, got %d", minPasswordBytes, n)
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func newGenpassCmd() *cobra.Command {
	var length int

	cmd := &cobra.Command{
		Use:   "genpass",
		Short: "Generate a random password for the encryption config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := generatePassword(length)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated password (%d random bytes):\n%s\n", length, pw)
			fmt.Fprintf(out, "\nYou can use it in encrypted.json:\n")
			fmt.Fprintf(out, "\"defaultPassword\": \"%s\"\n", pw)
			fmt.Fprintf(out, "\nOr set it as an environment variable:\n")
			fmt.Fprintf(out, "export PAGECRYPT_DEFAULT_PASSWORD=\"%s\"\n", pw)
			return nil
		},
	}

	cmd.Flags().IntVarP(&length, "length", "l", 18, "number of random bytes")
	return cmd
}
