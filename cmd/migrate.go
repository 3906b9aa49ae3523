/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/blnkfinance/payroute"
	"github.com/blnkfinance/payroute/database"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
)

const migrationSchema = "payroute"

func migrateCommands(p *payrouteInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "manage the payroute schema",
	}

	cmd.AddCommand(migrateUpCommands(p))
	cmd.AddCommand(migrateDownCommands(p))

	return cmd
}

// openMigrations connects to the configured database and points
// sql-migrate at the payroute schema.
func openMigrations(p *payrouteInstance) (*sql.DB, migrate.MigrationSource, error) {
	db, err := database.ConnectDB(p.cnf.DataSource.Dns)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to database: %v", err)
	}
	if _, err := db.Exec("CREATE SCHEMA IF NOT EXISTS " + migrationSchema); err != nil {
		return nil, nil, fmt.Errorf("error creating schema: %v", err)
	}
	migrate.SetSchema(migrationSchema)

	return db, migrate.EmbedFileSystemMigrationSource{
		FileSystem: payroute.SQLFiles,
		Root:       "sql",
	}, nil
}

func migrateUpCommands(p *payrouteInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "up",
		Run: func(cmd *cobra.Command, args []string) {
			db, migrations, err := openMigrations(p)
			if err != nil {
				log.Println(err)
				return
			}
			defer db.Close()

			n, err := migrate.Exec(db, "postgres", migrations, migrate.Up)
			if err != nil {
				log.Printf("Error migrating up: %v", err)
			} else {
				fmt.Printf("Applied %d migrations!\n", n)
			}
		},
	}

	return cmd
}

func migrateDownCommands(p *payrouteInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "down",
		Run: func(cmd *cobra.Command, args []string) {
			db, migrations, err := openMigrations(p)
			if err != nil {
				log.Println(err)
				return
			}
			defer db.Close()

			n, err := migrate.Exec(db, "postgres", migrations, migrate.Down)
			if err != nil {
				log.Printf("Error migrating down: %v", err)
			} else {
				fmt.Printf("Rolled back %d migrations!\n", n)
			}
		},
	}

	return cmd
}
