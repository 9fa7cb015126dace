package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"backoffice/pkg/agent/llm"
	"backoffice/pkg/config"
	"backoffice/pkg/logx"
)

// EnvPassword unlocks the secrets file without a prompt.
const EnvPassword = "BACKOFFICE_PASSWORD"

// clientSource builds the model client for a stage name.
type clientSource func(stage string) (llm.LLMClient, error)

// options are the persistent flags plus the seams tests replace.
type options struct {
	configPath   string
	dir          string
	debug        bool
	debugDomains []string

	// transcriptDir, when set, receives a JSONL transcript of every turn.
	transcriptDir string

	// clients overrides the provider factory when set.
	clients clientSource
	// readPassword overrides the terminal prompt when set.
	readPassword func(prompt string) (string, error)
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "backoffice",
		Short: "Conversational back office with a gated parking search",
		Long: `backoffice routes every message through a classifier. Parking requests pass a
credential challenge and are answered from the search tools; everything else goes
to a general assistant. Both answers are polished before they are shown.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.debug {
				logx.SetDebug(true)
				if len(opts.debugDomains) > 0 {
					logx.SetDebugDomains(opts.debugDomains)
				}
			}
			logx.SetOutput(cmd.ErrOrStderr())
			if err := config.LoadConfig(opts.configPath); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultConfigFile, "Path to the YAML config file")
	flags.StringVar(&opts.dir, "dir", ".", "Directory holding the encrypted secrets file")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flags.StringVar(&opts.transcriptDir, "transcript", "", "Write turn events as JSONL into this directory")
	flags.StringSliceVar(&opts.debugDomains, "debug-domains", nil, "Restrict debug logging to these domains")

	root.AddCommand(
		newChatCmd(opts),
		newAskCmd(opts),
		newFieldsCmd(opts),
		newServeMetricsCmd(opts),
		newStatsCmd(opts),
		newSecretsCmd(opts),
		newVersionCmd(),
	)
	return root
}

// unlockSecrets decrypts the secrets file when one exists. The password comes from
// BACKOFFICE_PASSWORD or, failing that, a no-echo prompt.
func unlockSecrets(cmd *cobra.Command, opts *options) error {
	if !config.SecretsFileExists(opts.dir) {
		return nil
	}
	password, err := secretsPassword(cmd, opts, false)
	if err != nil {
		return err
	}
	if err := config.LoadSecretsFile(opts.dir, password); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", config.SecretsFilePath(opts.dir), err)
	}
	return nil
}

// secretsPassword returns the secrets password. confirm asks twice, for new files.
func secretsPassword(cmd *cobra.Command, opts *options, confirm bool) (string, error) {
	if password := os.Getenv(EnvPassword); password != "" {
		return password, nil
	}

	read := opts.readPassword
	if read == nil {
		read = func(prompt string) (string, error) { return promptHidden(cmd, prompt) }
	}

	password, err := read("Secrets password: ")
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", errors.New("empty password")
	}
	if confirm {
		again, err := read("Confirm password: ")
		if err != nil {
			return "", err
		}
		if again != password {
			return "", errors.New("passwords do not match")
		}
	}
	return password, nil
}

// promptHidden reads one line without echo when stdin is a terminal.
func promptHidden(cmd *cobra.Command, prompt string) (string, error) {
	out := cmd.ErrOrStderr()
	fmt.Fprint(out, prompt)

	fd := int(os.Stdin.Fd()) //nolint:gosec // fd fits in int on every supported platform
	if !term.IsTerminal(fd) {
		line, err := readLine(cmd.InOrStdin())
		return strings.TrimSpace(line), err
	}

	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(out) // New line after password input
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	value := string(secret)
	for i := range secret {
		secret[i] = 0
	}
	return value, nil
}
