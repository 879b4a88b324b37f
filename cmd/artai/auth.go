package main

import (
	"context"
	"errors"
	"fmt"

	"artai-go/internal/app"
	"artai-go/internal/artai"

	"github.com/spf13/cobra"
)

func printUser(u *artai.User) {
	fmt.Printf("#%d  %s  <%s>", u.ID, u.Username, u.Email)
	if u.Role != "" {
		fmt.Printf("  [%s]", u.Role)
	}
	fmt.Println()
}

var loginCmd = &cobra.Command{
	Use:   "login [USERNAME|EMAIL]",
	Short: "Log in and remember the session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "Login", args, func(ctx context.Context, a *app.ArtaiApp) error {
			var ident string
			if len(args) > 0 {
				ident = args[0]
			} else {
				v, err := prompt("Username or email: ")
				if err != nil {
					return err
				}
				ident = v
			}
			password, err := readPassword("Password: ")
			if err != nil {
				return err
			}

			u, err := a.Session().Login(ctx, ident, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Printf("Logged in as %s\n", u.Username)
			return nil
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and log in",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		email, _ := cmd.Flags().GetString("email")

		return run(cmd, "Register", args, func(ctx context.Context, a *app.ArtaiApp) error {
			var err error
			if username == "" {
				if username, err = prompt("Username: "); err != nil {
					return err
				}
			}
			if email == "" {
				if email, err = prompt("Email: "); err != nil {
					return err
				}
			}
			password, err := readPassword("Password: ")
			if err != nil {
				return err
			}

			u, err := a.Session().Register(ctx, username, email, password)
			if err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}
			fmt.Printf("Registered and logged in as %s\n", u.Username)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "Logout", args, func(ctx context.Context, a *app.ArtaiApp) error {
			// A rejected persisted token already counts as logged out.
			if err := a.Bootstrap(ctx); err != nil && !artai.IsAuthRejected(err) {
				return err
			}
			if a.Session().Status() != artai.StatusAuthenticated {
				fmt.Println("Not logged in.")
				return nil
			}
			if err := a.Session().Logout(ctx); err != nil {
				// Local state is cleared regardless.
				fmt.Println("Logged out locally.")
				return err
			}
			fmt.Println("Logged out.")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuthed(cmd, "WhoAmI", args, func(ctx context.Context, a *app.ArtaiApp, u *artai.User) error {
			printUser(u)
			return nil
		})
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Update username, email or password",
	RunE: func(cmd *cobra.Command, args []string) error {
		patch := artai.ProfilePatch{
			Username: optionalString(cmd, "username"),
			Email:    optionalString(cmd, "email"),
		}
		changePassword, _ := cmd.Flags().GetBool("password")

		return runAuthed(cmd, "UpdateProfile", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			if changePassword {
				pw, err := readPassword("New password: ")
				if err != nil {
					return err
				}
				patch.Password = &pw
			}

			u, err := a.Session().UpdateProfile(ctx, patch)
			if errors.Is(err, artai.ErrEmptyProfilePatch) {
				return fmt.Errorf("%w; pass --username, --email or --password", err)
			}
			if err != nil {
				return fmt.Errorf("updating profile: %w", err)
			}
			printUser(u)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().String("username", "", "Account username")
	registerCmd.Flags().String("email", "", "Account email")
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().String("username", "", "New username")
	profileCmd.Flags().String("email", "", "New email")
	profileCmd.Flags().Bool("password", false, "Prompt for a new password")
}
