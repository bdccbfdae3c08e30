package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Local struct {
		Root              string `toml:"root"`
		ReplicateProperty string `toml:"replicate_property"`
		BackupProperty    string `toml:"backup_property"`
	} `toml:"local"`
	Replica struct {
		SSHKey  string `toml:"ssh_key"`
		SSHHost string `toml:"ssh_host"`
	} `toml:"replica"`
	Bucket struct {
		Name        string `toml:"name"`
		Region      string `toml:"region"`
		Prefix      string `toml:"prefix"`
		PartSize    int64  `toml:"part_size"`
		EnforceSize bool   `toml:"enforce_size"`
	} `toml:"bucket"`
	Run struct {
		Strict    bool   `toml:"strict"`
		HistoryDB string `toml:"history_db"`
		LogFile   string `toml:"log_file"`
		SnitchID  string `toml:"snitch_id"`
	} `toml:"run"`
}

var pathHierarchy = []string{
	"/etc/syncd.toml",
	"/usr/local/etc/syncd.toml",
	"/opt/local/etc/syncd.toml",
	"/Library/Application Support/co.monks.syncd/syncd.toml",
}

// Load reads the config from path, or walks the usual locations when path
// is empty.
func Load(path string) (*Config, error) {
	paths := pathHierarchy
	if path != "" {
		paths = []string{path}
	}

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil && os.IsNotExist(err) {
			continue
		} else if err != nil {
			return nil, err
		}

		defer f.Close()

		dec := toml.NewDecoder(f)
		var conf Config
		if _, err := dec.Decode(&conf); err != nil {
			return nil, fmt.Errorf("decoding '%s': %w", path, err)
		}

		conf.applyDefaults()
		if err := conf.validate(); err != nil {
			return nil, fmt.Errorf("config '%s': %w", path, err)
		}

		return &conf, nil
	}

	return nil, fmt.Errorf("no config file exists {%s}", strings.Join(paths, ", "))
}

func (conf *Config) applyDefaults() {
	if conf.Local.ReplicateProperty == "" {
		conf.Local.ReplicateProperty = "syncd:replicate"
	}
	if conf.Local.BackupProperty == "" {
		conf.Local.BackupProperty = "syncd:backup"
	}
	if conf.Bucket.PartSize == 0 {
		conf.Bucket.PartSize = 64 * 1024 * 1024
	}
	if conf.Run.HistoryDB == "" {
		conf.Run.HistoryDB = "/var/lib/syncd/history.db"
	}
}

func (conf *Config) validate() error {
	if conf.Local.Root == "" {
		return fmt.Errorf("local.root is required")
	}
	if conf.Bucket.PartSize < 5*1024*1024 {
		return fmt.Errorf("bucket.part_size must be at least 5MiB")
	}
	return nil
}
