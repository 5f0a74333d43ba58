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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_WINDOW_DAYS             = 5
	DEFAULT_AMOUNT_TOLERANCE        = 0.05
	DEFAULT_STRICT_AMOUNT_TOLERANCE = 0.01
	DEFAULT_CANDIDATE_LIMIT         = 10
	DEFAULT_AUTO_MATCH_MIN_SCORE    = 0.5
	DEFAULT_NUMBER_OF_QUEUES        = 4
)

var ConfigStore atomic.Value

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"RECON_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"RECON_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"RECON_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	ImportQueue      string `json:"import_queue" envconfig:"RECON_QUEUE_IMPORT_QUEUE"`
	NumberOfQueues   int    `json:"number_of_queues" envconfig:"RECON_QUEUE_NUMBER_OF_QUEUES"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"RECON_QUEUE_MAX_RETRY_ATTEMPTS"`
}

// MatchingConfig holds the defaults used when a caller or rule does not supply its own.
type MatchingConfig struct {
	WindowDays            int     `json:"window_days" envconfig:"RECON_MATCHING_WINDOW_DAYS"`
	AmountTolerance       float64 `json:"amount_tolerance" envconfig:"RECON_MATCHING_AMOUNT_TOLERANCE"`
	StrictAmountTolerance float64 `json:"strict_amount_tolerance" envconfig:"RECON_MATCHING_STRICT_AMOUNT_TOLERANCE"`
	CandidateLimit        int     `json:"candidate_limit" envconfig:"RECON_MATCHING_CANDIDATE_LIMIT"`
	AutoMatchMinScore     float64 `json:"auto_match_min_score" envconfig:"RECON_MATCHING_AUTO_MATCH_MIN_SCORE"`
}

type LockConfig struct {
	Duration    time.Duration `json:"duration" envconfig:"RECON_LOCK_DURATION"`
	WaitTimeout time.Duration `json:"wait_timeout" envconfig:"RECON_LOCK_WAIT_TIMEOUT"`
}

type RulesConfig struct {
	CacheTTL time.Duration `json:"cache_ttl" envconfig:"RECON_RULES_CACHE_TTL"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"RECON_PROJECT_NAME"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Queue           QueueConfig      `json:"queue"`
	Matching        MatchingConfig   `json:"matching"`
	Lock            LockConfig       `json:"lock"`
	Rules           RulesConfig      `json:"rules"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"RECON_ENABLE_TELEMETRY"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("recon", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called recon.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Recon"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	cnf.setQueueDefaults()
	cnf.setMatchingDefaults()

	if cnf.Lock.Duration == 0 {
		cnf.Lock.Duration = 30 * time.Second
	}
	if cnf.Lock.WaitTimeout == 0 {
		cnf.Lock.WaitTimeout = 5 * time.Second
	}
	if cnf.Rules.CacheTTL == 0 {
		cnf.Rules.CacheTTL = time.Minute
	}

	return nil
}

func (cnf *Configuration) setQueueDefaults() {
	if cnf.Queue.ImportQueue == "" {
		cnf.Queue.ImportQueue = "bank_feed_import"
	}
	if cnf.Queue.NumberOfQueues <= 0 {
		cnf.Queue.NumberOfQueues = DEFAULT_NUMBER_OF_QUEUES
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 3
	}
}

func (cnf *Configuration) setMatchingDefaults() {
	m := &cnf.Matching
	if m.WindowDays <= 0 {
		m.WindowDays = DEFAULT_WINDOW_DAYS
	}
	if m.AmountTolerance <= 0 {
		m.AmountTolerance = DEFAULT_AMOUNT_TOLERANCE
	}
	if m.StrictAmountTolerance <= 0 {
		m.StrictAmountTolerance = DEFAULT_STRICT_AMOUNT_TOLERANCE
	}
	if m.CandidateLimit <= 0 {
		m.CandidateLimit = DEFAULT_CANDIDATE_LIMIT
	}
	if m.AutoMatchMinScore <= 0 {
		m.AutoMatchMinScore = DEFAULT_AUTO_MATCH_MIN_SCORE
	}
}

// MockConfig sets a mock configuration for testing purposes.
// Missing matching and lock settings are filled with their defaults.
func MockConfig(mockConfig *Configuration) {
	mockConfig.setQueueDefaults()
	mockConfig.setMatchingDefaults()
	if mockConfig.Lock.Duration == 0 {
		mockConfig.Lock.Duration = 30 * time.Second
	}
	if mockConfig.Lock.WaitTimeout == 0 {
		mockConfig.Lock.WaitTimeout = time.Second
	}
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
