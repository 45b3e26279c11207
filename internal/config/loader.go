package config

import (
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
)

// envPrefix is the prefix for every service setting
const envPrefix = "INVOICE"

// legacyEnv maps config keys to the unprefixed variable names deployments
// already export. The prefixed name always wins.
var legacyEnv = map[string][]string{
	"server.host":           {"HOST"},
	"server.port":           {"PORT"},
	"database.url":          {"DATABASE_URL"},
	"redis.addr":            {"REDIS_ADDR"},
	"redis.password":        {"REDIS_PASSWORD"},
	"storage.endpoint":      {"MINIO_ENDPOINT"},
	"storage.access_key":    {"MINIO_ACCESS_KEY"},
	"storage.secret_key":    {"MINIO_SECRET_KEY"},
	"storage.bucket":        {"MINIO_BUCKET"},
	"storage.use_ssl":       {"MINIO_USE_SSL"},
	"auth.jwt_secret":       {"JWT_SECRET"},
	"ai.provider":           {"AI_PROVIDER"},
	"ai.openai_api_key":     {"OPENAI_API_KEY"},
	"ai.openai_base_url":    {"OPENAI_BASE_URL"},
	"ai.openai_model":       {"OPENAI_MODEL"},
	"ai.gemini_api_key":     {"GEMINI_API_KEY"},
	"ai.gemini_model":       {"GEMINI_MODEL"},
	"ai.ollama_base_url":    {"OLLAMA_BASE_URL"},
	"kafka.brokers":         {"KAFKA_BROKERS"},
	"validation.rules_file": {"RULES_FILE"},
	"duplication.workers":   {"DUPLICATION_WORKERS"},
	"log.level":             {"LOG_LEVEL"},
}

// newViper returns a viper instance reading YAML, with INVOICE_ env overrides
// where "database.url" resolves to INVOICE_DATABASE_URL.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about
	registerDefaults(v, "", reflect.ValueOf(*Default()))

	for key, names := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(append([]string{key, prefixed}, names...)...)
	}
	return v
}

// registerDefaults declares every mapstructure key of val with its value as
// the default, so a single env override never zeroes its siblings.
func registerDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct && f.Type.PkgPath() != "time" {
			registerDefaults(v, key, val.Field(i))
			continue
		}
		v.SetDefault(key, val.Field(i).Interface())
	}
}

// Load reads the YAML file at path, merges INVOICE_* and legacy environment
// overrides, applies defaults and validates. An empty path loads from the
// environment only.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromEnv()
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "failed to read config file "+path)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from environment variables alone
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "failed to unmarshal configuration")
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
