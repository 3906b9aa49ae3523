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
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/blnkfinance/payroute"
	"github.com/blnkfinance/payroute/config"
	redis_db "github.com/blnkfinance/payroute/internal/redis-db"
	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/spf13/cobra"
)

func initializeQueues(conf *config.Configuration) map[string]int {
	return map[string]int{
		conf.Queue.WebhookQueue: 3,
		conf.Queue.NoticeQueue:  1,
	}
}

func initializeWorkerServer(conf *config.Configuration, opt asynq.RedisConnOpt) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: conf.Queue.Concurrency,
		Queues:      initializeQueues(conf),
	})
}

// initializeTaskHandlers routes webhook deliveries and claimable notices to
// their processors. Tasks are enqueued under their queue name as the type.
func initializeTaskHandlers(p *payrouteInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(p.cnf.Queue.WebhookQueue, payroute.ProcessWebhook)
	mux.HandleFunc(p.cnf.Queue.NoticeQueue, p.payroute.ProcessClaimableNotice)
}

// workerCommands defines the "workers" command that drains the webhook and
// claimable-notice queues.
func workerCommands(p *payrouteInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start payroute workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conf := p.cnf

			shutdown, err := initializeTracing(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			redisOpt, err := redis_db.AsynqOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			if err != nil {
				log.Fatalf("error parsing Redis URL: %v", err)
			}

			srv := initializeWorkerServer(conf, redisOpt)
			mux := asynq.NewServeMux()
			initializeTaskHandlers(p, mux)

			h := asynqmon.New(asynqmon.Options{
				RootPath:     "/monitoring",
				RedisConnOpt: redisOpt,
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
