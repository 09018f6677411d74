package main

import (
	"github.com/spf13/cobra"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/http/dto"
	"github.com/jsamuelsen/devflow-identity/internal/domain"
)

func newSignInCmd(opts *rootOptions) *cobra.Command {
	var in domain.OAuthSignIn

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Link a provider identity to a user, creating both as needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.client.SignInWithOAuth(cmd.Context(), in); err != nil {
				return opts.fail(cmd, err)
			}

			return opts.render(nil)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&in.Provider, "provider", "", "provider name, e.g. github")
	flags.StringVar(&in.ProviderAccountID, "provider-account-id", "", "account id at the provider")
	flags.StringVar(&in.User.Name, "name", "", "display name")
	flags.StringVar(&in.User.Username, "username", "", "preferred username")
	flags.StringVar(&in.User.Email, "email", "", "email address")
	flags.StringVar(&in.User.Image, "image", "", "avatar URL")

	return cmd
}

func newUserByEmailCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "user-by-email EMAIL",
		Short: "Show the user with an email address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := opts.client.GetUserByEmail(cmd.Context(), args[0])
			if err != nil {
				return opts.fail(cmd, err)
			}

			return opts.render(dto.FromUser(user))
		},
	}
}

func newAccountByProviderCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "account-by-provider PROVIDER_ACCOUNT_ID",
		Short: "Show the account linked to a provider account id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := opts.client.GetAccountByProvider(cmd.Context(), args[0])
			if err != nil {
				return opts.fail(cmd, err)
			}

			return opts.render(dto.FromAccount(account))
		},
	}
}

func newUsersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List every user, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := opts.client.ListUsers(cmd.Context())
			if err != nil {
				return opts.fail(cmd, err)
			}

			return opts.render(dto.FromUsers(users))
		},
	}
}

func newAccountsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List every account, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts, err := opts.client.ListAccounts(cmd.Context())
			if err != nil {
				return opts.fail(cmd, err)
			}

			return opts.render(dto.FromAccounts(accounts))
		},
	}
}
