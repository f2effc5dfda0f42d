// Package cli административные команды linkctl: миграция схемы и
// управление справочником пользователей.
package cli

import (
	"fmt"
	"os"

	"github.com/dkuznetsov/link-registry/internal/config"
	"github.com/dkuznetsov/link-registry/internal/repository"
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "linkctl",
	Short: "Административные команды реестра ссылок",
}

func init() {
	RootCmd.AddCommand(MigrateCmd)
	RootCmd.AddCommand(AddUserCmd)
}

// Execute запускает CLI.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connectDB хелпер: конфиг + подключение к Postgres.
func connectDB() (*repository.PostgresDB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		return nil, err
	}
	return db, nil
}
