package config

import (
	"os"

	"github.com/go-yaml/yaml"

	"github.com/attestry/attestry"
)

type Config struct {
	NodeInfo NodeInfo `yaml:"nodeInfo"`
	Server   Server   `yaml:"server"`
}

type NodeInfo struct {
	FQDN       string `yaml:"fqdn"`
	PrivateKey string `yaml:"privatekey"`

	// ---
	AID string
}

type Server struct {
	Listen        string `yaml:"listen"`
	PostgresDsn   string `yaml:"postgresDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	aid, err := attestry.PrivKeyToAddr(config.NodeInfo.PrivateKey, "aid")
	if err != nil {
		return Config{}, err
	}

	config.NodeInfo.AID = aid

	return config, nil
}
