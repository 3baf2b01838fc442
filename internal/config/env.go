package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Connection holds destination connection parameters sourced from the
// environment. Tags drive the loader:
//
//	env:"NAME"         variable to read
//	default:"value"    used when the variable is unset
//	required:"true"    must be set for every backend
//	required:"network" must be set unless the backend is file-based (sqlite)
//
// A variable that is set to the empty string counts as present.
type Connection struct {
	Kind     string `env:"DB_KIND" default:"mysql"`
	Host     string `env:"DB_HOST" required:"network"`
	User     string `env:"DB_USER" required:"network"`
	Password string `env:"DB_PASSWORD" required:"network"`
	Database string `env:"DB_DATABASE" required:"true"`
	Port     int    `env:"DB_PORT"`
}

// defaultPorts is applied when DB_PORT is unset.
var defaultPorts = map[string]int{
	"mysql":    3306,
	"postgres": 5432,
	"mssql":    1433,
}

// ErrMissingEnv is wrapped by LoadConnection for every absent required
// variable.
var ErrMissingEnv = errors.New("required environment variable is not set")

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// LoadConnection builds a Connection from lookup. Pass os.LookupEnv in
// production and a map-backed func in tests.
func LoadConnection(lookup LookupFunc) (Connection, error) {
	var c Connection
	v := reflect.ValueOf(&c).Elem()
	t := v.Type()

	kind := "mysql"
	if k, ok := lookup("DB_KIND"); ok && strings.TrimSpace(k) != "" {
		kind = strings.ToLower(strings.TrimSpace(k))
	}
	fileBased := kind == "sqlite"

	var missing []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := f.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := lookup(name)
		if !ok {
			switch f.Tag.Get("required") {
			case "true":
				missing = append(missing, name)
				continue
			case "network":
				if !fileBased {
					missing = append(missing, name)
					continue
				}
			}
			raw = f.Tag.Get("default")
		}
		if raw == "" {
			continue
		}
		if err := setField(v.Field(i), raw); err != nil {
			return Connection{}, fmt.Errorf("config: invalid value for %s=%q: %w", name, raw, err)
		}
	}
	if len(missing) > 0 {
		return Connection{}, fmt.Errorf("config: %w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}

	c.Kind = kind
	if c.Port == 0 {
		c.Port = defaultPorts[kind]
	}
	return c, nil
}

func setField(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		if n <= 0 || n > 65535 {
			return fmt.Errorf("port out of range")
		}
		field.SetInt(int64(n))
	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}

// String renders the connection without the password.
func (c Connection) String() string {
	if c.Kind == "sqlite" {
		return fmt.Sprintf("%s:%s", c.Kind, c.Database)
	}
	return fmt.Sprintf("%s://%s@%s:%d/%s", c.Kind, c.User, c.Host, c.Port, c.Database)
}
