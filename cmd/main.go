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
	"fmt"
	"log"
	"os"

	"github.com/blnkfinance/payroute"
	"github.com/blnkfinance/payroute/config"
	"github.com/blnkfinance/payroute/database"
	"github.com/blnkfinance/payroute/feepolicy"
	"github.com/blnkfinance/payroute/internal/metrics"
	"github.com/blnkfinance/payroute/internal/notification"
	redis_db "github.com/blnkfinance/payroute/internal/redis-db"
	"github.com/blnkfinance/payroute/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Payroute is the CLI application.
type Payroute struct {
	cmd *cobra.Command
}

// payrouteInstance holds the engine and configuration shared by every command.
type payrouteInstance struct {
	payroute *payroute.Payroute
	queue    *payroute.Queue
	cnf      *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads configuration and wires the engine before any command runs.
func preRun(app *payrouteInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		// migrate only needs the configuration
		if cmd.Parent() != nil && cmd.Parent().Name() == "migrate" {
			app.cnf = cnf
			return nil
		}

		p, queue, err := setupPayroute(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.payroute = p
		app.queue = queue
		app.cnf = cnf
		return nil
	}
}

// feeSchedule loads the schedule file and applies the token classes listed
// in the token configuration on top of it.
func feeSchedule(cfg *config.Configuration) (model.FeeSchedule, error) {
	schedule, err := feepolicy.LoadSchedule(cfg.Fees.ScheduleFile)
	if err != nil {
		return model.FeeSchedule{}, err
	}
	for token, tc := range cfg.Fees.Tokens {
		if tc.Class != "" {
			schedule.TokenClasses[token] = model.TokenClass(tc.Class)
		}
	}
	return schedule, schedule.Validate()
}

func setupPayroute(cfg *config.Configuration) (*payroute.Payroute, *payroute.Queue, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting datasource: %v", err)
	}

	redisClient, err := redis_db.NewRedisClient([]string{cfg.Redis.Dns}, cfg.Redis.SkipTLSVerify)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to redis: %v", err)
	}

	schedule, err := feeSchedule(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading fee schedule: %v", err)
	}

	queue, err := payroute.NewQueue(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating queue: %v", err)
	}
	notification.RegisterWebhookSender(queue.NotificationSender())

	p := payroute.NewPayroute(db,
		payroute.WithRedis(redisClient.Client()),
		payroute.WithResolver(feepolicy.FromConfig(cfg.FeePolicy, redisClient.Client())),
		payroute.WithFeeSchedule(schedule),
		payroute.WithFeeCollector(cfg.Fees.FeeCollectorIndicator),
		payroute.WithDispatcher(queue),
		payroute.WithMetrics(metrics.NewRecorder(prometheus.DefaultRegisterer)),
	)
	return p, queue, nil
}

// NewCLI builds the root command and its subcommands.
func NewCLI() *Payroute {
	var configFile string
	p := &payrouteInstance{}

	var rootCmd = &cobra.Command{
		Use:   "payroute",
		Short: "Programmable payment routing",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./payroute.json", "Configuration file for payroute")
	rootCmd.PersistentPreRunE = preRun(p, &configFile)

	rootCmd.AddCommand(serverCommands(p))
	rootCmd.AddCommand(workerCommands(p))
	rootCmd.AddCommand(migrateCommands(p))
	rootCmd.AddCommand(walletCommands(p))
	rootCmd.AddCommand(configCommands(p))

	return &Payroute{cmd: rootCmd}
}

func (w Payroute) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
