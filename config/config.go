package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "JANASAMPARKA_"

type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Database   DatabaseConfig   `json:"database" yaml:"database"`
	RabbitMQ   RabbitMQConfig   `json:"rabbitmq" yaml:"rabbitmq"`
	JWT        JWTConfig        `json:"jwt" yaml:"jwt"`
	Clustering ClusteringConfig `json:"clustering" yaml:"clustering"`
	Priority   PriorityConfig   `json:"priority" yaml:"priority"`
}

type ServerConfig struct {
	Port string `json:"port" yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     string `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"dbname" yaml:"dbname"`
	SSLMode  string `json:"sslmode" yaml:"sslmode"`
}

type RabbitMQConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     string `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
}

type JWTConfig struct {
	Secret string `json:"secret" yaml:"secret"`
}

type ClusteringConfig struct {
	RadiusMeters   float64 `json:"radius_meters" yaml:"radius_meters"`
	MinClusterSize int     `json:"min_cluster_size" yaml:"min_cluster_size"`
}

type PriorityConfig struct {
	DuplicateRadiusMeters float64 `json:"duplicate_radius_meters" yaml:"duplicate_radius_meters"`
}

// LoadConfig reads a JSON or YAML config file, then applies .env and
// JANASAMPARKA_* overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, name string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	override(&c.Server.Port, "PORT")
	override(&c.Database.Host, "DB_HOST")
	override(&c.Database.Password, "DB_PASSWORD")
	override(&c.RabbitMQ.Host, "RABBITMQ_HOST")
	override(&c.RabbitMQ.Password, "RABBITMQ_PASSWORD")
	override(&c.JWT.Secret, "JWT_SECRET")
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.Port, "8080")
	setDefault(&c.Database.Port, "5432")
	setDefault(&c.Database.SSLMode, "disable")
	setDefault(&c.RabbitMQ.Host, "localhost")
	setDefault(&c.RabbitMQ.Port, "5672")
	setDefault(&c.RabbitMQ.User, "guest")
	setDefault(&c.RabbitMQ.Password, "guest")
}

func setDefault(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// Validate rejects configurations the service cannot start with. Zero
// clustering and priority values are left for the services to default.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required"))
	}
	if c.Database.DBName == "" {
		errs = append(errs, errors.New("database.dbname is required"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.Clustering.RadiusMeters < 0 {
		errs = append(errs, errors.New("clustering.radius_meters must not be negative"))
	}
	if c.Clustering.MinClusterSize != 0 && c.Clustering.MinClusterSize < 2 {
		errs = append(errs, errors.New("clustering.min_cluster_size must be at least 2"))
	}
	if c.Priority.DuplicateRadiusMeters < 0 {
		errs = append(errs, errors.New("priority.duplicate_radius_meters must not be negative"))
	}
	return errors.Join(errs...)
}

// DSN is the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// URL is the AMQP connection URL.
func (r RabbitMQConfig) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(r.User, r.Password),
		Host:   net.JoinHostPort(r.Host, r.Port),
		Path:   "/",
	}
	return u.String()
}
