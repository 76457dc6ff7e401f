package main

import (
	"fmt"

	"dotkeep/internal/app"

	"github.com/spf13/cobra"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Encrypt and edit sensitive files",
}

var secretsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the encryption identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("secrets.init")
		if err != nil {
			return err
		}
		defer a.Close()

		if a.SecretsConfigured() {
			fmt.Println("Secrets are already configured.")
			return nil
		}
		pass, err := app.AskNewPassphrase()
		if err != nil {
			return err
		}
		if err := a.SetupSecrets(pass); err != nil {
			return err
		}
		fmt.Println("Encryption identity created.")
		return nil
	},
}

var secretsEncryptCmd = &cobra.Command{
	Use:   "encrypt FILE",
	Short: "Write an encrypted copy of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("secrets.encrypt")
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.EncryptFile(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Encrypted %s -> %s (plaintext left in place).\n", args[0], out)
		return nil
	},
}

var secretsDecryptCmd = &cobra.Command{
	Use:   "decrypt FILE",
	Short: "Write the plaintext of an encrypted file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("secrets.decrypt")
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.DecryptFile(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Decrypted %s -> %s.\n", args[0], out)
		return nil
	},
}

var secretsEditCmd = &cobra.Command{
	Use:   "edit FILE",
	Short: "Decrypt a file into $EDITOR and re-encrypt it on save",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("secrets.edit")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.EditFile(cmd.Context(), args[0])
	},
}

func init() {
	secretsCmd.AddCommand(secretsInitCmd)
	secretsCmd.AddCommand(secretsEncryptCmd)
	secretsCmd.AddCommand(secretsDecryptCmd)
	secretsCmd.AddCommand(secretsEditCmd)

	rootCmd.AddCommand(secretsCmd)
}
