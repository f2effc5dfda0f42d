package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// MigrateCmd применяет схему БД.
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Создаёт таблицы links, access_events и users.",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := connectDB()
		if err != nil {
			log.Fatalf("FATAL: %v", err)
		}
		defer db.Close()

		if err := db.Migrate(cmd.Context()); err != nil {
			log.Fatalf("FATAL: migration failed: %v", err)
		}

		fmt.Println("Схема применена.")
	},
}
