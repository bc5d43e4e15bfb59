package cli

import (
	"fmt"
	"os"

	"github.com/mailbridge/core/internal/api/middleware"
	"github.com/mailbridge/core/internal/config"
	"github.com/mailbridge/core/internal/services"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	db            *gorm.DB
	cfg           *config.Config
	apiKeyManager *middleware.APIKeyManager
	userService   *services.UserService
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mailbridge",
	Short: "MailBridge mail manager backend",
	Long: `MailBridge is a multi-account mail manager backend with a built-in
background sync engine.

Administrative subcommands:
  mailbridge key show          # show the current API key
  mailbridge key reset         # reset the API key
  mailbridge user create       # create a new user
  mailbridge user list         # list all users
  mailbridge user reset-pwd    # reset a user's password`,
}

// Execute runs the CLI with the provided database and config
func Execute(database *gorm.DB, config *config.Config) {
	db = database
	cfg = config

	var err error
	apiKeyManager, err = middleware.NewAPIKeyManager(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize API key manager: %v\n", err)
		os.Exit(1)
	}

	logService := services.NewLogService(db)
	userService = services.NewUserService(db, logService)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(userCmd)
}
