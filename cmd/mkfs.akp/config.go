package main

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/mkfs"
	"github.com/mit-pdos/go-akpfs/super"
	"github.com/mit-pdos/go-akpfs/util"
)

const envVarPrefix = "AKPFS"

type Config struct {
	BlockSize   uint64 `envconfig:"BLOCK_SIZE"    yaml:"blockSize"`
	AvgFileSize uint64 `envconfig:"AVG_FILE_SIZE" yaml:"avgFileSize"`
	NoSeed      bool   `envconfig:"NO_SEED"       yaml:"noSeed"`
	SeedName    string `envconfig:"SEED_NAME"     yaml:"seedName"`
	SeedData    string `envconfig:"SEED_DATA"     yaml:"seedData"`
	Debug       uint64 `envconfig:"DEBUG"         yaml:"debug"`
	LogLevel    string `envconfig:"LOG_LEVEL"     yaml:"logLevel"`
	LogFormat   string `envconfig:"LOG_FORMAT"    yaml:"logFormat"`
}

func DefaultConfig() Config {
	return Config{
		BlockSize:   common.DEFAULTBLOCKSZ,
		AvgFileSize: common.AVGFILESZ,
		SeedName:    mkfs.DefaultSeedName,
		SeedData:    mkfs.DefaultSeedData,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// LoadConfig starts from the defaults, applies the YAML file at path (if
// path is set and the file exists, or AKPFS_CONFIG_FILE names one), then
// AKPFS_* environment variables.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(envVarPrefix + "_CONFIG_FILE")
	}

	c := DefaultConfig()
	if path != "" {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return nil, fmt.Errorf("unmarshaling config file: %w", err)
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	return &c, nil
}

func (c *Config) Validate() error {
	if err := super.CheckBlockSize(c.BlockSize); err != nil {
		return fmt.Errorf("blockSize / %s_BLOCK_SIZE: %w", envVarPrefix, err)
	}
	if c.AvgFileSize == 0 {
		return fmt.Errorf("avgFileSize / %s_AVG_FILE_SIZE must be positive", envVarPrefix)
	}
	if !c.NoSeed {
		if c.SeedName == "" || uint64(len(c.SeedName)) > common.NAMELEN {
			return fmt.Errorf("seedName / %s_SEED_NAME %q: %w", envVarPrefix, c.SeedName, common.ErrNameTooLong)
		}
		if uint64(len(c.SeedData)) > c.BlockSize {
			return fmt.Errorf("seedData / %s_SEED_DATA: %w", envVarPrefix, common.ErrFileTooLarge)
		}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("logLevel / %s_LOG_LEVEL: %w", envVarPrefix, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("logFormat / %s_LOG_FORMAT: wanted text or json; found %q", envVarPrefix, c.LogFormat)
	}
	return nil
}

// SetupLogging points util.Log at the configured level and format.
func (c *Config) SetupLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	util.Log.SetLevel(level)
	if c.LogFormat == "json" {
		util.Log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		util.Log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	util.Debug = c.Debug
}

func (c *Config) MkfsOptions() mkfs.Options {
	return mkfs.Options{
		Seed:        !c.NoSeed,
		SeedName:    c.SeedName,
		SeedData:    []byte(c.SeedData),
		AvgFileSize: c.AvgFileSize,
	}
}
