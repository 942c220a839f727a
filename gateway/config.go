// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"regexp"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"gopkg.in/yaml.v3"

	"axonflow/campaign-gateway/gateway/assetstore"
	"axonflow/campaign-gateway/gateway/mcp"
)

// Config is the full gateway configuration. It is loaded from an optional
// YAML file (environment references expanded), then overridden by
// environment variables so container deployments need no file at all.
type Config struct {
	Server    ServerConfig       `yaml:"server"`
	Database  DatabaseConfig     `yaml:"database"`
	Redis     RedisConfig        `yaml:"redis"`
	Auth      AuthConfig         `yaml:"auth"`
	RateLimit RateLimitConfig    `yaml:"rate_limit"`
	Audit     AuditConfig        `yaml:"audit"`
	Assets    assetstore.Config  `yaml:"assets"`
	Tools     []mcp.ServerConfig `yaml:"tools"`
}

// ServerConfig tunes the HTTP listener
type ServerConfig struct {
	Port            string   `yaml:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	ShutdownSeconds int      `yaml:"shutdown_seconds"`
}

// DatabaseConfig locates the postgres instance. URL wins when set;
// otherwise the DSN is assembled from the separate fields. SecretARN
// points at an AWS Secrets Manager secret holding the credentials.
type DatabaseConfig struct {
	URL       string `yaml:"url"`
	Host      string `yaml:"host"`
	Port      string `yaml:"port"`
	Name      string `yaml:"name"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	SSLMode   string `yaml:"ssl_mode"`
	SecretARN string `yaml:"secret_arn"`
	Region    string `yaml:"region"`
}

// RedisConfig locates the optional rate limit coordination backend.
// An empty Addr keeps limiting in process memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig covers both authentication planes: the API key prefix for
// the data plane and the JWT secret for the admin plane.
type AuthConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
	JWTSecret string `yaml:"jwt_secret"`
}

// RateLimitConfig overrides the limiter defaults
type RateLimitConfig struct {
	GlobalLimit   int            `yaml:"global_limit"`
	WindowSeconds int            `yaml:"window_seconds"`
	ActionLimits  map[string]int `yaml:"action_limits"`
}

// AuditConfig selects the audit sink and tunes the queue. Sink is
// "postgres" (default, reuses the primary database) or "mongodb".
type AuditConfig struct {
	Sink            string `yaml:"sink"`
	QueueSize       int    `yaml:"queue_size"`
	BatchSize       int    `yaml:"batch_size"`
	FlushSeconds    int    `yaml:"flush_seconds"`
	FallbackPath    string `yaml:"fallback_path"`
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`
}

// LoadConfig reads the YAML file at path, expands ${VAR} and
// ${VAR:-default} references, and applies environment overrides. An
// empty path skips the file and configures from the environment alone.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("PORT", c.Server.Port)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.Host = getEnv("DATABASE_HOST", c.Database.Host)
	c.Database.Port = getEnv("DATABASE_PORT", c.Database.Port)
	c.Database.Name = getEnv("DATABASE_NAME", c.Database.Name)
	c.Database.User = getEnv("DATABASE_USER", c.Database.User)
	c.Database.Password = getEnv("DATABASE_PASSWORD", c.Database.Password)
	c.Database.SSLMode = getEnv("DATABASE_SSLMODE", c.Database.SSLMode)
	c.Database.SecretARN = getEnv("DATABASE_SECRET_ARN", c.Database.SecretARN)
	c.Database.Region = getEnv("AWS_REGION", c.Database.Region)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	c.Auth.KeyPrefix = getEnv("API_KEY_PREFIX", c.Auth.KeyPrefix)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)

	c.Audit.Sink = getEnv("AUDIT_SINK", c.Audit.Sink)
	c.Audit.MongoURI = getEnv("MONGODB_URI", c.Audit.MongoURI)
	c.Audit.FallbackPath = getEnv("AUDIT_FALLBACK_PATH", c.Audit.FallbackPath)

	c.Assets.Provider = getEnv("ASSET_STORE_PROVIDER", c.Assets.Provider)
	c.Assets.Bucket = getEnv("ASSET_STORE_BUCKET", c.Assets.Bucket)
	c.Assets.Directory = getEnv("ASSET_STORE_DIRECTORY", c.Assets.Directory)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ShutdownSeconds <= 0 {
		c.Server.ShutdownSeconds = 10
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Audit.Sink == "" {
		c.Audit.Sink = "postgres"
	}
}

// DSN returns the postgres connection string. URL wins; otherwise the
// string is assembled from the separate fields with the password URL
// encoded so special characters survive the URI format.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Host == "" {
		return ""
	}

	port := c.Port
	if port == "" {
		port = "5432"
	}
	name := c.Name
	if name == "" {
		name = "campaigns"
	}
	user := c.User
	if user == "" {
		user = "gateway"
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(user), url.QueryEscape(c.Password), c.Host, port, name, sslMode)
}

// ResolveSecrets fetches database credentials from AWS Secrets Manager
// when a secret ARN is configured. The secret is a JSON object; the
// username, password, host, port and dbname keys override their
// configured counterparts.
func (c *Config) ResolveSecrets(ctx context.Context) error {
	if c.Database.SecretARN == "" {
		return nil
	}

	secret, err := fetchSecret(ctx, c.Database.Region, c.Database.SecretARN)
	if err != nil {
		return err
	}

	if v := secret["username"]; v != "" {
		c.Database.User = v
	}
	if v := secret["password"]; v != "" {
		c.Database.Password = v
	}
	if v := secret["host"]; v != "" {
		c.Database.Host = v
	}
	if v := secret["port"]; v != "" {
		c.Database.Port = v
	}
	if v := secret["dbname"]; v != "" {
		c.Database.Name = v
	}

	log.Printf("[Gateway] ✅ Database credentials resolved from secret %s", maskARN(c.Database.SecretARN))
	return nil
}

// fetchSecret reads one secret value. The value is expected to be a JSON
// object of string fields; a non-JSON value is returned under "value".
func fetchSecret(ctx context.Context, region, secretARN string) (map[string]string, error) {
	optFns := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg)
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: awssdk.String(secretARN),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskARN(secretARN), err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskARN(secretARN))
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &fields); err != nil {
		fields = map[string]string{"value": *result.SecretString}
	}
	return fields, nil
}

// maskARN hides the secret ARN in logs, keeping the last 8 characters
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands environment variable references in the string.
// Supports ${VAR_NAME}, $VAR_NAME and ${VAR_NAME:-default}; undefined
// variables without a default become empty strings.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
