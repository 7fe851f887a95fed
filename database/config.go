/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables that override the YAML
// configuration, e.g. DB_HOST or DB_MIGRATE_ENABLE_FOREIGN_KEY.
const EnvPrefix = "DB_"

// envSections maps flat variable prefixes onto config sections. Anything else
// is a connection setting.
var envSections = []struct{ prefix, section string }{
	{"migrate_", "data_migrate_config."},
	{"init_", "data_init_config."},
}

// envAliases keeps the historical variable names working.
var envAliases = map[string]string{
	"name": "dbname",
	"type": "type",
}

// LoadConfig reads the database configuration from a YAML file, when path is
// not empty, and applies DB_* environment overrides on top of the defaults.
// Durations are Go duration strings such as "30s".
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load database config %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load database environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("failed to decode database config: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, sec := range envSections {
		if strings.HasPrefix(key, sec.prefix) {
			return sec.section + strings.TrimPrefix(key, sec.prefix)
		}
	}
	if alias, ok := envAliases[key]; ok {
		key = alias
	}
	return "connection_config." + key
}
