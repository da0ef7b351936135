package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/128technology/pca-importer/client"
)

// ErrMalformedConfig is returned for any configuration that cannot be used.
var ErrMalformedConfig = errors.New("malformed configuration")

// Output formats.
const (
	OutputJSON         = "json"
	OutputLineProtocol = "line-protocol"
)

// ApplicationConfig represents the application portion of the config
type ApplicationConfig struct {
	LogLevel             string `ini:"log-level" validate:"oneof=debug info warn warning error"`
	MaxConcurrentObjects int    `ini:"max-concurrent-objects" validate:"gte=1"`
	Output               string `ini:"output" validate:"oneof=json line-protocol"`
}

// AuthConfig represents the auth portion of the config
type AuthConfig struct {
	URL                string `ini:"url" validate:"required,url"`
	Username           string `ini:"username" validate:"required"`
	Password           string `ini:"password"`
	Timeout            int    `ini:"timeout" validate:"gte=1"`
	InsecureSkipVerify bool   `ini:"insecure-skip-verify"`
}

// MetricsConfig represents the metrics portion of the config
type MetricsConfig struct {
	Granularity   string `ini:"granularity" validate:"required,iso8601duration"`
	Interval      string `ini:"interval" validate:"required,iso8601interval"`
	Aggregation   string `ini:"aggregation" validate:"omitempty,aggregation"`
	ScopeToObject bool   `ini:"scope-to-object"`
	ObjectsFile   string `ini:"monitored-objects-file"`
}

// Config represents the application's configuration
type Config struct {
	Application ApplicationConfig
	Auth        AuthConfig
	Metrics     MetricsConfig
	Objects     []client.MonitoredObject `validate:"required,min=1,dive"`
}

// RequestTimeout returns the per-request timeout.
func (a AuthConfig) RequestTimeout() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// Credential returns the login credential.
func (a AuthConfig) Credential() client.Credential {
	return client.Credential{Username: a.Username, Password: a.Password}
}

func defaults() *Config {
	return &Config{
		Application: ApplicationConfig{
			LogLevel:             "info",
			MaxConcurrentObjects: 1,
			Output:               OutputJSON,
		},
		Auth: AuthConfig{
			Timeout: int(client.DefaultTimeout / time.Second),
		},
		Metrics: MetricsConfig{
			ScopeToObject: true,
		},
	}
}

const objectsSection = "monitored-objects"

// The monitored objects section is read raw: its keys are object ids, which
// may contain ':', and a line without '=' must not become a boolean key.
var loadOpts = ini.LoadOptions{
	AllowBooleanKeys:    true,
	UnparseableSections: []string{objectsSection},
}

// Load loads a configuration file and returns a configuration object. Every
// error wraps ErrMalformedConfig.
func Load(filename string) (*Config, error) {
	file, err := ini.LoadSources(loadOpts, filename)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedConfig, err.Error())
	}

	return parse(file, filename)
}

// LoadBytes parses configuration from memory. Relative object file paths are
// resolved against the working directory.
func LoadBytes(data []byte) (*Config, error) {
	file, err := ini.LoadSources(loadOpts, data)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedConfig, err.Error())
	}

	return parse(file, "")
}

func parse(file *ini.File, filename string) (*Config, error) {
	cfg := defaults()

	sections := []struct {
		name   string
		target interface{}
	}{
		{"application", &cfg.Application},
		{"auth", &cfg.Auth},
		{"metrics", &cfg.Metrics},
	}

	for _, section := range sections {
		if err := file.Section(section.name).MapTo(section.target); err != nil {
			return nil, errors.Wrapf(ErrMalformedConfig, "[%v]: %v", section.name, err)
		}
	}

	applyEnvOverrides(cfg)

	objects, err := getMonitoredObjects(file.Section(objectsSection))
	if err != nil {
		return nil, err
	}
	cfg.Objects = objects

	if cfg.Metrics.ObjectsFile != "" {
		path := resolve(filename, cfg.Metrics.ObjectsFile)
		fileObjects, err := LoadObjectsFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Objects = append(cfg.Objects, fileObjects...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getMonitoredObjects parses "<id> = <objectType>" lines, splitting on the
// first '='. Blank lines and lines starting with '#' or ';' are ignored.
func getMonitoredObjects(section *ini.Section) ([]client.MonitoredObject, error) {
	lines := strings.Split(section.Body(), "\n")
	objects := make([]client.MonitoredObject, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		id, objectType, ok := strings.Cut(line, "=")
		if !ok {
			return nil, errors.Wrapf(ErrMalformedConfig, "[%v] line %v: %q has no objectType, expected <id> = <objectType>",
				objectsSection, i+1, line)
		}

		objects = append(objects, client.MonitoredObject{
			ID:         strings.TrimSpace(id),
			ObjectType: strings.TrimSpace(objectType),
		})
	}
	return objects, nil
}

type objectsFile struct {
	MonitoredObjects []client.MonitoredObject `yaml:"monitored_objects"`
}

// LoadObjectsFile reads a YAML list of monitored objects, either as a bare
// sequence or under a monitored_objects key.
func LoadObjectsFile(path string) ([]client.MonitoredObject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedConfig, "reading monitored objects file: %v", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(ErrMalformedConfig, "parsing %v: %v", path, err)
	}

	if len(doc.Content) == 0 {
		return nil, errors.Wrapf(ErrMalformedConfig, "%v is empty", path)
	}

	var objects []client.MonitoredObject
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		err = root.Decode(&objects)
	case yaml.MappingNode:
		var wrapped objectsFile
		err = root.Decode(&wrapped)
		objects = wrapped.MonitoredObjects
	default:
		err = fmt.Errorf("expected a list of {id, objectType} records")
	}
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedConfig, "%v: %v", path, err)
	}

	return objects, nil
}

func resolve(configFile string, path string) string {
	if configFile == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(configFile), path)
}

// applyEnvOverrides checks for environment variables with the PCA_ prefix
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PCA_URL"); v != "" {
		cfg.Auth.URL = v
	}
	if v := os.Getenv("PCA_USERNAME"); v != "" {
		cfg.Auth.Username = v
	}
	if v := os.Getenv("PCA_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}
}

var (
	durationPattern = regexp.MustCompile(`^P(\d+Y)?(\d+M)?(\d+W)?(\d+D)?(T(\d+H)?(\d+M)?(\d+(\.\d+)?S)?)?$`)
	validate        = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	register := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("registering %v validation: %v", tag, err))
		}
	}

	register("iso8601duration", func(fl validator.FieldLevel) bool {
		return IsDuration(fl.Field().String())
	})
	register("iso8601interval", func(fl validator.FieldLevel) bool {
		return IsInterval(fl.Field().String())
	})
	register("aggregation", func(fl validator.FieldLevel) bool {
		return client.Aggregation(fl.Field().String()).Valid()
	})
	return v
}

// IsDuration reports whether s is an ISO-8601 duration such as PT5M.
func IsDuration(s string) bool {
	if !durationPattern.MatchString(s) {
		return false
	}
	return s != "P" && !strings.HasSuffix(s, "T")
}

// IsInterval reports whether s is an ISO-8601 start/end interval with RFC3339
// timestamps and the end after the start.
func IsInterval(s string) bool {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return false
	}

	start, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return false
	}

	end, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return false
	}

	return end.After(start)
}

// Validate ensures all required configuration values are set
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errors.Wrap(ErrMalformedConfig, err.Error())
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		messages = append(messages, describe(fieldErr))
	}

	return errors.Wrap(ErrMalformedConfig, strings.Join(messages, "; "))
}

func describe(fieldErr validator.FieldError) string {
	field := strings.TrimPrefix(fieldErr.Namespace(), "Config.")
	switch fieldErr.Tag() {
	case "required":
		if field == "Objects" {
			return "no monitored objects configured"
		}
		return fmt.Sprintf("%v is required", field)
	case "min":
		return "no monitored objects configured"
	case "iso8601duration":
		return fmt.Sprintf("%v %q is not an ISO-8601 duration", field, fieldErr.Value())
	case "iso8601interval":
		return fmt.Sprintf("%v %q is not an ISO-8601 start/end interval", field, fieldErr.Value())
	default:
		return fmt.Sprintf("%v %q failed %v validation", field, fieldErr.Value(), fieldErr.Tag())
	}
}

// PrintConfig prints a sample configuration listing the given metrics to the stdout
func PrintConfig(metrics []client.MetricDescriptor) {
	fmt.Println("[application]")
	fmt.Println("# One of debug, info, warn or error.")
	fmt.Println("log-level=info")
	fmt.Println("# The maximum number of monitored objects to query at a given time.")
	fmt.Println("max-concurrent-objects=1")
	fmt.Println("# Either json or line-protocol.")
	fmt.Println("output=json")
	fmt.Println()
	fmt.Println("[auth]")
	fmt.Println("# The fully qualified URL to the PCA tenant. E.g: https://tenant.analytics.accedian.io")
	fmt.Println("url=")
	fmt.Println("username=")
	fmt.Println("# Leave empty to be prompted for the password.")
	fmt.Println("password=")
	fmt.Println("# The timeout, in seconds, of every request.")
	fmt.Println("timeout=30")
	fmt.Println("insecure-skip-verify=false")
	fmt.Println()
	fmt.Println("[metrics]")
	fmt.Println("# The ISO-8601 bucket width, e.g. PT5M.")
	fmt.Println("granularity=PT5M")
	fmt.Println("# The ISO-8601 interval to query, start/end.")
	fmt.Println("interval=")
	fmt.Println("# Overrides the aggregation (avg) of every object type.")
	fmt.Println("#aggregation=max")
	fmt.Println("scope-to-object=true")
	fmt.Println("# A YAML list of {id, objectType} records, in addition to [monitored-objects].")
	fmt.Println("#monitored-objects-file=objects.yaml")
	fmt.Println()
	fmt.Println("[monitored-objects]")
	fmt.Println("# One monitored object per line: <id> = <objectType>")
	fmt.Println()

	for _, metric := range metrics {
		fmt.Printf("# %v (%v, direction %v): %v\n", metric.ID, metric.ObjectType, metric.Direction, metric.Description)
	}
}
