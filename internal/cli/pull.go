// Package cli — pull.go implements the "dockstack pull" and
// "dockstack push" commands.
//
// Both accept either password credentials or an identity token; giving
// both is rejected before any request reaches the registry.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/dockstack/internal/docker"
)

// authFlags holds registry credential flags.
type authFlags struct {
	username      string
	password      string
	email         string
	server        string
	identityToken string
}

func addAuthFlags(cmd *cobra.Command, f *authFlags) {
	cmd.Flags().StringVar(&f.username, "username", "", "Registry username")
	cmd.Flags().StringVar(&f.password, "password", "", "Registry password")
	cmd.Flags().StringVar(&f.email, "email", "", "Registry account email")
	cmd.Flags().StringVar(&f.server, "server", "", "Registry server address")
	cmd.Flags().StringVar(&f.identityToken, "identity-token", "", "Identity token from a previous registry login")
}

// registryAuth builds the credential variant selected by the flags.
// Validation, including the both-forms check, happens in the docker
// package.
func (f *authFlags) registryAuth() docker.RegistryAuth {
	var auth docker.RegistryAuth
	if f.username != "" || f.password != "" || f.email != "" {
		auth.Password = &docker.PasswordAuth{
			Username:      f.username,
			Password:      f.password,
			Email:         f.email,
			ServerAddress: f.server,
		}
	}
	if f.identityToken != "" {
		auth.Token = &docker.TokenAuth{
			IdentityToken: f.identityToken,
			ServerAddress: f.server,
		}
	}
	return auth
}

// NewPullCommand creates the "pull" cobra command.
func NewPullCommand() *cobra.Command {
	flags := &authFlags{}

	cmd := &cobra.Command{
		Use:   "pull <image>",
		Short: "Pull an image",
		Long: `Pull an image from a registry, optionally with credentials.

Examples:
  dockstack pull nginx:1.27
  dockstack pull registry.example.com/team/api:2 --username ci --password "$TOKEN"
  dockstack pull registry.example.com/team/api:2 --identity-token "$ID_TOKEN"`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runImageTransfer(cmd, "pull", args[0], flags)
		},
	}

	addAuthFlags(cmd, flags)

	return cmd
}

// NewPushCommand creates the "push" cobra command.
func NewPushCommand() *cobra.Command {
	flags := &authFlags{}

	cmd := &cobra.Command{
		Use:   "push <image>",
		Short: "Push an image",
		Long: `Push an image to a registry, optionally with credentials.

Examples:
  dockstack push registry.example.com/team/api:2 --username ci --password "$TOKEN"`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runImageTransfer(cmd, "push", args[0], flags)
		},
	}

	addAuthFlags(cmd, flags)

	return cmd
}

func runImageTransfer(cmd *cobra.Command, op, ref string, flags *authFlags) error {
	auth := flags.registryAuth()
	if err := auth.Validate(); err != nil {
		return err
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	if !IsJSONOutput() {
		sess.client.SetProgressOutput(cmd.ErrOrStderr())
	}

	transfer := sess.client.PullImage
	if op == "push" {
		transfer = sess.client.PushImage
	}
	if err := transfer(cmd.Context(), ref, auth); err != nil {
		return err
	}

	normalized, err := docker.NormalizeReference(ref)
	if err != nil {
		return err
	}
	if IsJSONOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"image": normalized, "status": op + "ed"})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %sed\n", normalized, op)
	return nil
}
