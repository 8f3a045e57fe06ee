package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port        string `json:"port"`
	DSLDir      string `json:"dslDir"`
	FormsDir    string `json:"formsDir"` // YAML-наложения настроек полей
	DBURL       string `json:"dbUrl"`
	AutoMigrate bool   `json:"autoMigrate"`

	// Схему читать из базы, а не из DSL (только postgres://)
	Introspect bool   `json:"introspect"`
	Module     string `json:"module"`   // модуль для сущностей из базы
	DBSchema   string `json:"dbSchema"` // схема postgres для чтения таблиц
}

// Backend — вид хранилища по DBURL.
type Backend string

const (
	Memory   Backend = "memory"
	Postgres Backend = "postgres"
	SQLite   Backend = "sqlite"
)

func (c Config) Backend() (Backend, error) {
	u := strings.TrimSpace(c.DBURL)
	switch {
	case u == "":
		return Memory, nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return Postgres, nil
	case strings.HasPrefix(u, "sqlite:"):
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported dbUrl %q", u)
}

// SQLiteDSN — путь для драйвера sqlite без префикса "sqlite:".
func (c Config) SQLiteDSN() string {
	return strings.TrimPrefix(strings.TrimPrefix(c.DBURL, "sqlite:"), "//")
}

func def() Config {
	return Config{
		Port:        "8080",
		DSLDir:      "dsl",
		FormsDir:    "forms",
		DBURL:       "",
		AutoMigrate: false,
		Introspect:  false,
		Module:      "db",
		DBSchema:    "public",
	}
}

func loadJSON(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, c)
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func parseBool(v string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}

func getenvBool(k string, fallback bool) bool {
	if v, ok := os.LookupEnv(k); ok {
		if b, ok := parseBool(v); ok {
			return b
		}
	}
	return fallback
}

// Load собирает настройки: умолчания, JSON по jsonPath (если файл есть),
// переменные AUTOFORM_*, затем флаги из args.
func Load(jsonPath string, args []string) (Config, error) {
	// путь к JSON можно сменить флагом, поэтому сначала ищем только его
	configPath := jsonPath
	for i, a := range args {
		if a == "-config" || a == "--config" {
			if i+1 < len(args) {
				configPath = args[i+1]
			}
		} else if v, ok := strings.CutPrefix(strings.TrimLeft(a, "-"), "config="); ok && strings.HasPrefix(a, "-") {
			configPath = v
		}
	}

	cfg := def()
	if st, err := os.Stat(configPath); err == nil && !st.IsDir() {
		if err := loadJSON(configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", configPath, err)
		}
	}

	// ENV overrides
	cfg.Port = getenv("AUTOFORM_PORT", cfg.Port)
	cfg.DSLDir = getenv("AUTOFORM_DSL_DIR", cfg.DSLDir)
	cfg.FormsDir = getenv("AUTOFORM_FORMS_DIR", cfg.FormsDir)
	cfg.DBURL = getenv("AUTOFORM_DB_URL", cfg.DBURL)
	cfg.AutoMigrate = getenvBool("AUTOFORM_AUTO_MIGRATE", cfg.AutoMigrate)
	cfg.Introspect = getenvBool("AUTOFORM_INTROSPECT", cfg.Introspect)
	cfg.Module = getenv("AUTOFORM_MODULE", cfg.Module)
	cfg.DBSchema = getenv("AUTOFORM_DB_SCHEMA", cfg.DBSchema)

	// Flags overrides
	fs := flag.NewFlagSet("autoform", flag.ContinueOnError)
	fs.String("config", configPath, "Path to config JSON")
	port := fs.String("port", cfg.Port, "HTTP port")
	dsl := fs.String("dsl", cfg.DSLDir, "Path to DSL directory")
	forms := fs.String("forms", cfg.FormsDir, "Path to field configuration overlays")
	db := fs.String("db", cfg.DBURL, "postgres:// or sqlite: URL (empty = in-memory)")
	auto := fs.String("auto-migrate", strconv.FormatBool(cfg.AutoMigrate), "Create missing tables (true/false)")
	intro := fs.String("introspect", strconv.FormatBool(cfg.Introspect), "Read schema from the database (true/false)")
	module := fs.String("module", cfg.Module, "Module name for introspected entities")
	dbSchema := fs.String("db-schema", cfg.DBSchema, "Postgres schema to introspect")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.Port = strings.TrimSpace(*port)
	cfg.DSLDir = strings.TrimSpace(*dsl)
	cfg.FormsDir = strings.TrimSpace(*forms)
	cfg.DBURL = strings.TrimSpace(*db)
	if b, ok := parseBool(*auto); ok {
		cfg.AutoMigrate = b
	}
	if b, ok := parseBool(*intro); ok {
		cfg.Introspect = b
	}
	cfg.Module = strings.TrimSpace(*module)
	cfg.DBSchema = strings.TrimSpace(*dbSchema)

	if _, err := cfg.Backend(); err != nil {
		return cfg, err
	}
	if b, _ := cfg.Backend(); cfg.Introspect && b != Postgres {
		return cfg, fmt.Errorf("introspect requires a postgres dbUrl")
	}
	return cfg, nil
}

// LoadWithPath — Load с аргументами командной строки процесса.
func LoadWithPath(jsonPath string) (Config, error) {
	return Load(jsonPath, os.Args[1:])
}
