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

package settings

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/tomoncle/dalkit/database"
)

type PostgresSettings struct {
	Host     string `env:"POSTGRES_HOST" env-default:"localhost" validate:"required"`
	Port     int    `env:"POSTGRES_PORT" env-default:"5432" validate:"gte=1,lte=65535"`
	User     string `env:"POSTGRES_USER" env-description:"login role" validate:"required"`
	Password string `env:"POSTGRES_PASSWORD" validate:"required"`
	Database string `env:"POSTGRES_DATABASE" validate:"required"`
	AppName  string `env:"POSTGRES_APP_NAME" env-description:"application_name reported to the server"`
	Debug    bool   `env:"POSTGRES_DEBUG" env-default:"false" env-description:"echo SQL statements"`
}

// URL returns the postgresql:// URL with user and password query-escaped.
func (s PostgresSettings) URL() string {
	return credentialURL("postgresql", s.User, s.Password, s.Host, s.Port, s.Database)
}

// ConnectionConfig returns a database connection config for the server,
// with pool and timeout defaults.
func (s PostgresSettings) ConnectionConfig() *database.ConnectionConfig {
	c := database.DefaultConnectionConfig()
	c.Type = "postgres"
	c.Host = s.Host
	c.Port = s.Port
	c.Username = s.User
	c.Password = s.Password
	c.DBName = s.Database
	c.ApplicationName = s.AppName
	c.Debug = s.Debug
	return c
}

type MariaDBSettings struct {
	Host     string `env:"MARIADB_HOST" env-default:"localhost" validate:"required"`
	Port     int    `env:"MARIADB_PORT" env-default:"3306" validate:"gte=1,lte=65535"`
	User     string `env:"MARIADB_USER" validate:"required"`
	Password string `env:"MARIADB_PASSWORD" validate:"required"`
	Database string `env:"MARIADB_DATABASE" validate:"required"`
	Debug    bool   `env:"MARIADB_DEBUG" env-default:"false" env-description:"echo SQL statements"`
}

func (s MariaDBSettings) URL() string {
	return credentialURL("mariadb", s.User, s.Password, s.Host, s.Port, s.Database)
}

func (s MariaDBSettings) ConnectionConfig() *database.ConnectionConfig {
	c := database.DefaultConnectionConfig()
	c.Type = "mariadb"
	c.Host = s.Host
	c.Port = s.Port
	c.Username = s.User
	c.Password = s.Password
	c.DBName = s.Database
	c.Debug = s.Debug
	return c
}

// DatabaseSettings is the older DATABASE_* variable set, always Postgres.
type DatabaseSettings struct {
	Host     string `env:"DATABASE_HOST" validate:"required"`
	Port     int    `env:"DATABASE_PORT" env-default:"5432" validate:"gte=1,lte=65535"`
	User     string `env:"DATABASE_USER" validate:"required"`
	Password string `env:"DATABASE_PASSWORD" validate:"required"`
	DB       string `env:"DATABASE_DB" validate:"required"`
}

func (s DatabaseSettings) URL() string {
	return credentialURL("postgresql", s.User, s.Password, s.Host, s.Port, s.DB)
}

func (s DatabaseSettings) ConnectionConfig() *database.ConnectionConfig {
	return PostgresSettings{
		Host:     s.Host,
		Port:     s.Port,
		User:     s.User,
		Password: s.Password,
		Database: s.DB,
	}.ConnectionConfig()
}

type RedisSettings struct {
	Host     string `env:"REDIS_HOST" env-default:"localhost" validate:"required"`
	Port     int    `env:"REDIS_PORT" env-default:"6379" validate:"gte=1,lte=65535"`
	Password string `env:"REDIS_PASSWORD" validate:"required"`
	TLS      bool   `env:"REDIS_TLS" env-default:"false"`
	DB       int    `env:"REDIS_DB" env-default:"0" validate:"gte=0"`
}

func (s RedisSettings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns redis://:password@host:port/db, or rediss:// with TLS.
func (s RedisSettings) URL() string {
	scheme := "redis"
	if s.TLS {
		scheme = "rediss"
	}
	return fmt.Sprintf("%s://:%s@%s/%d", scheme, url.QueryEscape(s.Password), s.Addr(), s.DB)
}

// Options returns go-redis client options for the server.
func (s RedisSettings) Options() *redis.Options {
	opts := &redis.Options{
		Addr:     s.Addr(),
		Password: s.Password,
		DB:       s.DB,
	}
	if s.TLS {
		opts.TLSConfig = &tls.Config{ServerName: s.Host, MinVersion: tls.VersionTLS12}
	}
	return opts
}

type RabbitMQSettings struct {
	Host     string `env:"RABBITMQ_HOST" env-default:"localhost" validate:"required"`
	Port     int    `env:"RABBITMQ_PORT" env-default:"5672" validate:"gte=1,lte=65535"`
	User     string `env:"RABBITMQ_USER" validate:"required"`
	Password string `env:"RABBITMQ_PASSWORD" validate:"required"`
	TLS      bool   `env:"RABBITMQ_TLS" env-default:"false"`
	VHost    string `env:"RABBITMQ_VHOST" env-default:"/"`
}

// URL returns the amqp:// URL, or amqps:// with TLS. The virtual host is
// path-escaped, so the default "/" becomes %2F.
func (s RabbitMQSettings) URL() string {
	scheme := "amqp"
	if s.TLS {
		scheme = "amqps"
	}
	return credentialURL(scheme, s.User, s.Password, s.Host, s.Port, url.PathEscape(s.VHost))
}

type TelegramSettings struct {
	BotToken string `env:"TELEGRAM_BOT_TOKEN" validate:"required"`
	ChatID   string `env:"TELEGRAM_CHAT_ID" validate:"required"`
}

func credentialURL(scheme, user, password, host string, port int, path string) string {
	return fmt.Sprintf("%s://%s:%s@%s/%s",
		scheme,
		url.QueryEscape(user),
		url.QueryEscape(password),
		net.JoinHostPort(host, strconv.Itoa(port)),
		path,
	)
}
