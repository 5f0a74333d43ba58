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
package recon

import (
	"embed"

	"github.com/blnkfinance/recon/config"
	"github.com/blnkfinance/recon/database"
	"github.com/blnkfinance/recon/internal/cache"
	redis_db "github.com/blnkfinance/recon/internal/redis-db"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

// Recon matches bank feed transactions against the ledger, applies user rules
// and reconciles bank statements.
type Recon struct {
	datasource database.IDataSource
	ledger     database.LedgerRepository
	redis      redis.UniversalClient
	queue      *Queue
	rules      cache.Cache
	config     *config.Configuration
}

//go:embed sql/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("recon")

// NewRecon wires the engines to the datasource. When ledger is nil the
// datasource's own ledger view is used.
func NewRecon(db database.IDataSource, ledger database.LedgerRepository) (*Recon, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	redisClient, err := redis_db.NewRedisClient(redis_db.SplitAddresses(configuration.Redis.Dns), configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}

	if ledger == nil {
		ledger = db
	}

	return &Recon{
		datasource: db,
		ledger:     ledger,
		redis:      redisClient.Client(),
		queue:      NewQueue(configuration),
		rules:      cache.NewRedisCache(redisClient.Client(), configuration.Rules.CacheTTL),
		config:     configuration,
	}, nil
}

// Queue exposes the import queue used by the workers.
func (r *Recon) Queue() *Queue {
	return r.queue
}

func (r *Recon) Close() error {
	if r.queue != nil {
		if err := r.queue.Close(); err != nil {
			return err
		}
	}
	return r.redis.Close()
}
