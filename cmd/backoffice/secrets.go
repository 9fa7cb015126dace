package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"backoffice/pkg/config"
)

func newSecretsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted secrets file",
		Long: `Secrets hold provider API keys, the Elasticsearch credentials and the parking
credential. They are stored in .backoffice/secrets.json.enc under --dir and
take precedence over environment variables of the same name.`,
	}
	cmd.AddCommand(newSecretsSetCmd(opts), newSecretsListCmd(opts), newSecretsDeleteCmd(opts))
	return cmd
}

// openSecrets unlocks an existing file, or asks for a new password when there is none.
func openSecrets(cmd *cobra.Command, opts *options) (string, error) {
	exists := config.SecretsFileExists(opts.dir)
	password, err := secretsPassword(cmd, opts, !exists)
	if err != nil {
		return "", err
	}
	if exists {
		if err := config.LoadSecretsFile(opts.dir, password); err != nil {
			return "", fmt.Errorf("failed to unlock secrets: %w", err)
		}
	} else {
		config.SetDecryptedSecrets(map[string]string{})
	}
	return password, nil
}

func newSecretsSetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> [value]",
		Short: "Store a secret (the value is prompted for without echo when omitted)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := openSecrets(cmd, opts)
			if err != nil {
				return err
			}

			name := args[0]
			var value string
			if len(args) == 2 {
				value = args[1]
			} else {
				read := opts.readPassword
				if read == nil {
					read = func(prompt string) (string, error) { return promptHidden(cmd, prompt) }
				}
				if value, err = read(fmt.Sprintf("Value for %s: ", name)); err != nil {
					return err
				}
			}
			if value == "" {
				return fmt.Errorf("empty value for %s", name)
			}

			config.SetSecret(name, value)
			if err := config.SaveSecretsToFile(opts.dir, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in %s\n", name, config.SecretsFilePath(opts.dir))
			return nil
		},
	}
}

func newSecretsListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !config.SecretsFileExists(opts.dir) {
				fmt.Fprintln(cmd.OutOrStdout(), "No secrets file")
				return nil
			}
			if _, err := openSecrets(cmd, opts); err != nil {
				return err
			}
			for _, name := range config.SecretNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newSecretsDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !config.SecretsFileExists(opts.dir) {
				return fmt.Errorf("no secrets file in %s", opts.dir)
			}
			password, err := openSecrets(cmd, opts)
			if err != nil {
				return err
			}
			config.DeleteSecret(args[0])
			return config.SaveSecretsToFile(opts.dir, password)
		},
	}
}
