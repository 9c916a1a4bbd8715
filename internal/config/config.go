// Package config loads the oscrc configuration file.
package config

import (
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/ernado/osc-babysitter/internal/oscerr"
)

// DefaultAPIURL is the build service used when none is configured.
const DefaultAPIURL = "https://api.opensuse.org"

// EnvPath overrides the configuration file location.
const EnvPath = "OSC_CONFIG"

// URL is an absolute http or https URL.
type URL url.URL

func (u URL) String() string {
	v := url.URL(u)
	return v.String()
}

func (u URL) MarshalYAML() (interface{}, error) {
	if u.Host == "" {
		return nil, nil
	}
	return u.String(), nil
}

func (u *URL) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return errors.Wrap(err, "decode URL")
	}
	v, err := ParseURL(str)
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// ParseURL parses an API URL.
func ParseURL(s string) (URL, error) {
	v, err := url.Parse(s)
	if err != nil {
		return URL{}, errors.Wrap(err, "parse URL")
	}
	if v.Scheme != "http" && v.Scheme != "https" {
		return URL{}, errors.Errorf("apiurl %q: scheme must be http or https", s)
	}
	if v.Host == "" {
		return URL{}, errors.Errorf("apiurl %q: missing host", s)
	}
	return URL(*v), nil
}

// Config is the oscrc file.
type Config struct {
	APIURL    URL  `yaml:"apiurl"`
	AllowHTTP bool `yaml:"allow_http,omitempty"`
	// Developer flags, nil if not set.
	Traceback  *bool `yaml:"traceback,omitempty"`
	PostMortem *bool `yaml:"post_mortem,omitempty"`
	Debug      *bool `yaml:"debug,omitempty"`
	// Headers are added to every request to the build service.
	Headers map[string]string `yaml:"http_headers,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	u, _ := ParseURL(DefaultAPIURL)
	return Config{APIURL: u}
}

// Sample returns a configuration with every flag spelled out.
func Sample() Config {
	cfg := Default()
	cfg.Traceback = new(bool)
	cfg.PostMortem = new(bool)
	cfg.Debug = new(bool)
	return cfg
}

// Record returns the flags that are set, keyed by option name.
func (c Config) Record() map[string]any {
	r := make(map[string]any)
	for name, v := range map[string]*bool{
		"traceback":   c.Traceback,
		"post_mortem": c.PostMortem,
		"debug":       c.Debug,
	} {
		if v != nil {
			r[name] = *v
		}
	}
	return r
}

// Path returns the configuration file location and whether it was chosen
// explicitly through the environment.
func Path() (string, bool) {
	if p := os.Getenv(EnvPath); p != "" {
		return p, true
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".config", "osc", "oscrc.yaml"), false
	}
	return filepath.Join(dir, "osc", "oscrc.yaml"), false
}

// Load reads the configuration file at path.
//
// A missing file is an error only if explicit is set, otherwise Default is
// returned.
func Load(fsys afero.Fs, path string, explicit bool) (Config, error) {
	data, err := afero.ReadFile(fsys, path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		return Default(), nil
	case errors.Is(err, fs.ErrNotExist):
		return Config{}, &oscerr.NoConfigfile{
			File: path,
			Msg:  "config file " + path + " does not exist",
		}
	case err != nil:
		return Config{}, &oscerr.IOError{
			Msg: "cannot read config file " + path,
			Err: err,
		}
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &oscerr.ConfigError{
			File: path,
			Msg:  "invalid config file " + path + ": " + err.Error(),
		}
	}
	return cfg, nil
}

// Write encodes cfg as YAML.
func Write(w io.Writer, cfg Config) error {
	e := yaml.NewEncoder(w)
	e.SetIndent(2)
	if err := e.Encode(cfg); err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := e.Close(); err != nil {
		return errors.Wrap(err, "close encoder")
	}
	return nil
}
