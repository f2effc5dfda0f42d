package cli

import (
	"errors"
	"fmt"
	"log"

	"github.com/dkuznetsov/link-registry/internal/models"
	"github.com/dkuznetsov/link-registry/internal/repository"
	"github.com/spf13/cobra"
)

var (
	usernameFlag string
	roleFlag     string
)

// AddUserCmd регистрирует пользователя в справочнике.
// Пароли и аутентификация — забота внешнего коллаборатора.
var AddUserCmd = &cobra.Command{
	Use:   "add-user",
	Short: "Регистрирует пользователя (username + роль).",
	Run: func(cmd *cobra.Command, args []string) {
		if usernameFlag == "" {
			log.Fatalf("FATAL: флаг --username обязателен")
		}
		if roleFlag != models.RoleUser && roleFlag != models.RoleAdmin {
			log.Fatalf("FATAL: роль должна быть %q или %q", models.RoleUser, models.RoleAdmin)
		}

		db, err := connectDB()
		if err != nil {
			log.Fatalf("FATAL: %v", err)
		}
		defer db.Close()

		users := repository.NewUserRepository(db)
		user := &models.User{Username: usernameFlag, Role: roleFlag}

		if err := users.Register(cmd.Context(), user); err != nil {
			if errors.Is(err, repository.ErrUserExists) {
				log.Fatalf("FATAL: пользователь %q уже существует", usernameFlag)
			}
			log.Fatalf("FATAL: %v", err)
		}

		fmt.Printf("Пользователь %q зарегистрирован с ролью %q.\n", user.Username, user.Role)
	},
}

func init() {
	AddUserCmd.Flags().StringVar(&usernameFlag, "username", "", "Имя пользователя")
	AddUserCmd.Flags().StringVar(&roleFlag, "role", models.RoleUser, "Роль: user или admin")
}
