// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"time"

	"github.com/spf13/viper"
)

type dbConfig struct {
	URL      string `toml:"url"`
	ApplyDDL bool   `toml:"apply_ddl"`
}

type healthchecksConfig struct {
	PingURL string `toml:"ping_url,omitempty"`
}

type cacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// fileConfig is the layout of ~/.pvfin.toml written by `pvfin init`
type fileConfig struct {
	Tickers       []string           `toml:"tickers"`
	Industry      string             `toml:"industry,omitempty"`
	LookbackYears int                `toml:"lookback_years"`
	DB            dbConfig           `toml:"db"`
	Cache         cacheConfig        `toml:"cache"`
	Healthchecks  healthchecksConfig `toml:"healthchecks"`
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("db.apply_ddl", false)
	viper.SetDefault("lookback_years", 10)
	viper.SetDefault("industry", "Ngân hàng")
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.dir", "data")
	viper.SetDefault("provider.name", "tcbs")
	viper.SetDefault("provider.rate_limit", 60)
	viper.SetDefault("provider.timeout", 30*time.Second)
	viper.SetDefault("fetch.workers", 4)
	viper.SetDefault("fetch.max_attempts", 3)
	viper.SetDefault("fetch.retry_delay", time.Minute)
	viper.SetDefault("load.mode", "incremental")
	viper.SetDefault("backblaze.prefix", "pvfin")
}
