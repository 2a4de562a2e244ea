package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guided-traffic/pagecrypt/pkg/encryption"
)

func newEncryptCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "encrypt [text]",
		Short: "Encrypt text (or stdin) and print the base64 payload",
		Long: `Encrypt text with the same protocol used for page fragments and print the
base64 payload. Reads stdin when no text is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			payload, err := encryption.NewFragmentCodec().EncryptFragment(cmd.Context(), input, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), payload)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "encryption password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newDecryptCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "decrypt [payload]",
		Short: "Decrypt a base64 payload (or stdin) and print the plaintext",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			plaintext, err := encryption.NewFragmentCodec().DecryptFragment(cmd.Context(), strings.TrimSpace(input), password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), plaintext)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "decryption password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// readInput returns the first argument, or stdin without its trailing newline
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	s := strings.TrimSuffix(string(data), "\n")
	return strings.TrimSuffix(s, "\r"), nil
}
