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
	"os"
	"testing"
	"time"
)

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := Configuration{
		ProjectName: "",
		DataSource: DataSourceConfig{
			Dns: "",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}

	err := cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "data source DNS is required" {
		t.Errorf("Expected data source DNS required error, got %v", err)
	}
	cnf = Configuration{
		DataSource: DataSourceConfig{
			Dns: "postgres://localhost:5432",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "redis DNS is required" {
		t.Errorf("Expected redis DNS required error, got %v", err)
	}

	cnf = Configuration{
		DataSource: DataSourceConfig{
			Dns: " some-dns ",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if cnf.ProjectName != "Recon" {
		t.Errorf("Expected default project name, got %s", cnf.ProjectName)
	}
	if cnf.DataSource.Dns != "some-dns" {
		t.Errorf("Expected trimmed DNS, got %q", cnf.DataSource.Dns)
	}
	if cnf.Matching.WindowDays != DEFAULT_WINDOW_DAYS || cnf.Matching.CandidateLimit != DEFAULT_CANDIDATE_LIMIT {
		t.Errorf("Expected matching defaults, got %+v", cnf.Matching)
	}
	if cnf.Matching.StrictAmountTolerance != DEFAULT_STRICT_AMOUNT_TOLERANCE {
		t.Errorf("Expected strict tolerance %v, got %v", DEFAULT_STRICT_AMOUNT_TOLERANCE, cnf.Matching.StrictAmountTolerance)
	}
	if cnf.Queue.NumberOfQueues != DEFAULT_NUMBER_OF_QUEUES {
		t.Errorf("Expected %d queues, got %d", DEFAULT_NUMBER_OF_QUEUES, cnf.Queue.NumberOfQueues)
	}
	if cnf.Lock.WaitTimeout != 5*time.Second {
		t.Errorf("Expected default lock wait timeout, got %s", cnf.Lock.WaitTimeout)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "recon.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	sampleConfig := Configuration{
		ProjectName: "Temp Project",
		DataSource: DataSourceConfig{
			Dns: "temp-dns",
		},
		Redis: RedisConfig{
			Dns: "temp-redis",
		},
		Matching: MatchingConfig{
			WindowDays: 7,
		},
	}
	if err := json.NewEncoder(tmpFile).Encode(sampleConfig); err != nil {
		t.Fatalf("Unable to write to temporary file: %v", err)
	}
	tmpFile.Close()

	t.Setenv("RECON_PROJECT_NAME", "Env Project")
	t.Setenv("RECON_MATCHING_CANDIDATE_LIMIT", "3")

	if err := loadConfigFromFile(tmpFile.Name()); err != nil {
		t.Fatalf("loadConfigFromFile failed: %v", err)
	}

	loadedConfig, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if loadedConfig.ProjectName != "Env Project" {
		t.Errorf("Expected ProjectName to be 'Env Project', got '%s'", loadedConfig.ProjectName)
	}
	if loadedConfig.DataSource.Dns != "temp-dns" {
		t.Errorf("Expected DataSource.Dns to be 'temp-dns', got '%s'", loadedConfig.DataSource.Dns)
	}
	if loadedConfig.Matching.WindowDays != 7 {
		t.Errorf("Expected window days from file, got %d", loadedConfig.Matching.WindowDays)
	}
	if loadedConfig.Matching.CandidateLimit != 3 {
		t.Errorf("Expected candidate limit from env, got %d", loadedConfig.Matching.CandidateLimit)
	}
}

func TestInitConfigMissingFile(t *testing.T) {
	t.Setenv("RECON_DATA_SOURCE_DNS", "postgres://env")
	t.Setenv("RECON_REDIS_DNS", "localhost:6379")

	if err := InitConfig("/nonexistent/recon.json"); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	loadedConfig, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if loadedConfig.DataSource.Dns != "postgres://env" {
		t.Errorf("Expected DataSource.Dns from env, got '%s'", loadedConfig.DataSource.Dns)
	}
}

func TestMockConfigFillsDefaults(t *testing.T) {
	MockConfig(&Configuration{Redis: RedisConfig{Dns: "localhost:6379"}})
	cnf, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if cnf.Matching.AmountTolerance != DEFAULT_AMOUNT_TOLERANCE {
		t.Errorf("Expected default amount tolerance, got %v", cnf.Matching.AmountTolerance)
	}
}
