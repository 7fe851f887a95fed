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

package types

import (
	"database/sql/driver"
	"errors"

	"github.com/bytedance/sonic"
)

// JsonObject is a convenience type for JSON columns mapped to objects.
type JsonObject map[string]interface{}

// JsonArray is a convenience type for JSON columns mapped to arrays.
type JsonArray []JsonObject

func (j JsonObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return sonic.Marshal(j)
}

func (j *JsonObject) Scan(value interface{}) error {
	b, err := jsonBytes(value)
	if err != nil || b == nil {
		*j = make(JsonObject)
		return err
	}
	return sonic.Unmarshal(b, j)
}

func (j JsonArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return sonic.Marshal(j)
}

func (j *JsonArray) Scan(value interface{}) error {
	b, err := jsonBytes(value)
	if err != nil || b == nil {
		*j = make(JsonArray, 0)
		return err
	}
	return sonic.Unmarshal(b, j)
}

// jsonBytes accepts both []byte and string since sqlite and pgx return text
// columns as strings.
func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("json column must be []byte or string")
	}
}
