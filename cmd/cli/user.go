package cli

import (
	"errors"
	"fmt"

	"github.com/axellelanca/trafficstats/cmd"
	"github.com/axellelanca/trafficstats/internal/database"
	apperrors "github.com/axellelanca/trafficstats/internal/errors"
	"github.com/axellelanca/trafficstats/internal/repository"
	"github.com/axellelanca/trafficstats/internal/services"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	firstNameFlag string
	lastNameFlag  string
	emailFlag     string
)

// UserCmd groups the account management commands
var UserCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the users traffic is attributed to",
}

// UserCreateCmd represents the 'user create' command
var UserCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user",
	Long: `Create a user account.

Example:
  trafficstats user create alice --first-name=Alice --email=alice@example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return withUserService(func(users *services.UserService) error {
			user, err := users.CreateUser(c.Context(), args[0], firstNameFlag, lastNameFlag, emailFlag)
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			fmt.Printf("User created successfully:\n")
			fmt.Printf("ID: %d\n", user.ID)
			fmt.Printf("Username: %s\n", user.Username)
			return nil
		})
	},
}

// UserTokenCmd represents the 'user token' command
var UserTokenCmd = &cobra.Command{
	Use:   "token <id|username>",
	Short: "Issue a bearer token for a user",
	Long: `Issue a JWT that attributes requests to the user. Send it as
"Authorization: Bearer <token>" or in the auth_token cookie.
The server must run with the same auth.jwt_secret.`,
	Args: cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		if cmd.Cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret must be set to issue tokens")
		}
		return withUserService(func(users *services.UserService) error {
			token, user, err := users.IssueToken(c.Context(), args[0])
			if err != nil {
				return userError(args[0], err)
			}
			fmt.Printf("Token for %s (id %d), valid for %s:\n%s\n", user.Username, user.ID, cmd.Cfg.Auth.TokenTTL, token)
			return nil
		})
	},
}

// UserDeleteCmd represents the 'user delete' command
var UserDeleteCmd = &cobra.Command{
	Use:   "delete <id|username>",
	Short: "Delete a user, keeping their traffic as anonymous",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return withUserService(func(users *services.UserService) error {
			user, err := users.DeleteUser(c.Context(), args[0])
			if err != nil {
				return userError(args[0], err)
			}
			fmt.Printf("User %s (id %d) deleted.\n", user.Username, user.ID)
			return nil
		})
	},
}

func withUserService(fn func(*services.UserService) error) error {
	db, err := cmd.OpenDatabase()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)

	return fn(newUserService(db))
}

func newUserService(db *gorm.DB) *services.UserService {
	return services.NewUserService(repository.NewUserRepository(db), cmd.Cfg.Auth.JWTSecret, cmd.Cfg.Auth.TokenTTL)
}

func userError(ref string, err error) error {
	if errors.Is(err, apperrors.ErrUserNotFound) {
		return fmt.Errorf("user '%s' not found", ref)
	}
	return err
}

func init() {
	UserCreateCmd.Flags().StringVar(&firstNameFlag, "first-name", "", "First name")
	UserCreateCmd.Flags().StringVar(&lastNameFlag, "last-name", "", "Last name")
	UserCreateCmd.Flags().StringVar(&emailFlag, "email", "", "Email address")

	UserCmd.AddCommand(UserCreateCmd, UserTokenCmd, UserDeleteCmd)
	cmd.RootCmd.AddCommand(UserCmd)
}
