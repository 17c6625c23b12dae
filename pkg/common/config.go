/**
 * Copyright 2020 The IcecaneDB Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package common

import (
	"fmt"
	"io/ioutil"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// CacheFSConfig defines the configuration settings for the cachefs daemon
type CacheFSConfig struct {
	// Capacity is the number of blocks the cache can hold.
	Capacity int `yaml:"capacity"`

	// Algorithm is one of lru, lfu or fbr.
	Algorithm   string  `yaml:"algorithm"`
	OldFraction float64 `yaml:"oldFraction"`
	NewFraction float64 `yaml:"newFraction"`

	// ScratchRoot is the directory all the cached files must live under.
	ScratchRoot string `yaml:"scratchRoot"`

	Address  string `yaml:"address"`
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
}

// NewDefaultCacheFSConfig returns a new default cachefs configuration.
func NewDefaultCacheFSConfig() *CacheFSConfig {
	return &CacheFSConfig{
		Capacity:    1024,
		Algorithm:   "lru",
		OldFraction: 0.5,
		NewFraction: 0.25,
		ScratchRoot: "/tmp",
		Address:     "127.0.0.1",
		Port:        "9090",
		LogLevel:    "info",
	}
}

// Validate validates a CacheFSConfig and returns an error if it's invalid.
// The cache itself validates the fractions against the algorithm.
func (conf *CacheFSConfig) Validate() error {
	if conf.Capacity <= 0 {
		return fmt.Errorf("invalid capacity provided in config")
	}
	switch strings.ToLower(conf.Algorithm) {
	case "lru", "lfu", "fbr":
	default:
		return fmt.Errorf("invalid algorithm %q provided in config", conf.Algorithm)
	}
	if conf.ScratchRoot == "" {
		return fmt.Errorf("invalid scratch root provided in config")
	}
	if conf.Address == "" {
		return fmt.Errorf("invalid address provided in config")
	}
	if conf.Port == "" {
		return fmt.Errorf("invalid port provided in config")
	}
	if _, err := log.ParseLevel(conf.LogLevel); err != nil {
		return fmt.Errorf("invalid log level provided in config: %v", err)
	}
	return nil
}

// LoadFromFile loads the config from the file. It assumes that config already has the defaults.
// In the case of an error, it leaves the config untouched.
func (conf *CacheFSConfig) LoadFromFile(path string) {
	log.Info(fmt.Sprintf("cachefs::config::LoadFromFile; loading config from file %s", path))
	data, err := ioutil.ReadFile(path)
	if err != nil {
		log.Error(fmt.Sprintf("cachefs::config::LoadFromFile; error reading config from file %s, error %s", path, err))
		return
	}
	fconf := CacheFSConfig{}
	err = yaml.Unmarshal(data, &fconf)
	if err != nil {
		log.Error(fmt.Sprintf("cachefs::config::LoadFromFile; error unmarshalling config from file %s, error %s", path, err))
		return
	}

	log.WithFields(log.Fields{"config": fconf}).Debug("cachefs::config::LoadFromFile; read contents from the file")

	// populate fields
	if fconf.Capacity != 0 {
		conf.Capacity = fconf.Capacity
	}
	if fconf.Algorithm != "" {
		conf.Algorithm = fconf.Algorithm
	}
	if fconf.OldFraction != 0 {
		conf.OldFraction = fconf.OldFraction
	}
	if fconf.NewFraction != 0 {
		conf.NewFraction = fconf.NewFraction
	}
	if fconf.ScratchRoot != "" {
		conf.ScratchRoot = fconf.ScratchRoot
	}
	if fconf.Address != "" {
		conf.Address = fconf.Address
	}
	if fconf.Port != "" {
		conf.Port = fconf.Port
	}
	if fconf.LogLevel != "" {
		conf.LogLevel = fconf.LogLevel
	}
}

// ClientConfig defines the configuration settings for the cachefs command line client
type ClientConfig struct {
	Address string `yaml:"address"`
	Port    string `yaml:"port"`
}

// NewDefaultClientConfig returns a client config pointing at the default daemon address.
func NewDefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Address: "127.0.0.1",
		Port:    "9090",
	}
}

// Target returns the dial target of the daemon.
func (conf *ClientConfig) Target() string {
	return fmt.Sprintf("%s:%s", conf.Address, conf.Port)
}

// LoadFromFile reads the client config from the file
func (conf *ClientConfig) LoadFromFile(path string) {
	log.Info(fmt.Sprintf("cachefs::config::LoadFromFile; loading client config from file %s", path))
	data, err := ioutil.ReadFile(path)
	if err != nil {
		log.Error(fmt.Sprintf("cachefs::config::LoadFromFile; error reading client config from file %s, error %s", path, err))
		return
	}
	fconf := ClientConfig{}
	err = yaml.Unmarshal(data, &fconf)
	if err != nil {
		log.Error(fmt.Sprintf("cachefs::config::LoadFromFile; error unmarshalling client config from file %s, error %s", path, err))
		return
	}

	log.WithFields(log.Fields{"config": fconf}).Debug("cachefs::config::LoadFromFile; read contents from the file")

	if fconf.Address != "" {
		conf.Address = fconf.Address
	}
	if fconf.Port != "" {
		conf.Port = fconf.Port
	}
}
