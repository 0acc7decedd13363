package main

import (
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/satishbabariya/sqlforge/cli/commands"
	"github.com/satishbabariya/sqlforge/cli/internal/ui"
	"github.com/satishbabariya/sqlforge/internal/debug"
)

func main() {
	err := commands.Execute()
	debug.Sync()
	if err != nil {
		ui.PrintError("%v", err)
		os.Exit(1)
	}
}
