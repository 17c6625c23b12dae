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

package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dr0pdb/icecanefs/pkg/common"
	"github.com/dr0pdb/icecanefs/pkg/server"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

var (
	configFilePath     = "/etc/cachefsd.yaml"
	configFilePathFlag = flag.String("configFilePath", "", "overrides the default config file path")
	capacity           = flag.Int("capacity", 0, "overrides the number of cached blocks")
	algorithm          = flag.String("algorithm", "", "overrides the eviction algorithm (lru, lfu or fbr)")
	scratchRoot        = flag.String("root", "", "overrides the scratch root")
	port               = flag.String("port", "", "overrides the listening port")
	logLevel           = flag.String("loglevel", "", "the level of log")
)

func main() {
	flag.Parse()
	log.SetFormatter(&log.JSONFormatter{})

	log.Info("cachefsdmain::main::main; starting")
	conf := common.NewDefaultCacheFSConfig()
	if *configFilePathFlag != "" {
		configFilePath = *configFilePathFlag
	}
	conf.LoadFromFile(configFilePath)

	// flags take precedence over the file.
	if *capacity != 0 {
		conf.Capacity = *capacity
	}
	if *algorithm != "" {
		conf.Algorithm = *algorithm
	}
	if *scratchRoot != "" {
		conf.ScratchRoot = *scratchRoot
	}
	if *port != "" {
		conf.Port = *port
	}
	if *logLevel != "" {
		conf.LogLevel = *logLevel
	}

	if err := conf.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	level, _ := log.ParseLevel(conf.LogLevel)
	log.SetLevel(level)

	options, err := server.OptionsFromConfig(conf)
	if err != nil {
		log.Fatalf("%v", err)
	}
	cacheServer, err := server.NewCacheFSServer(options)
	if err != nil {
		log.Fatalf("%v", err)
	}

	var alivePolicy = keepalive.EnforcementPolicy{
		MinTime:             2 * time.Second, // If a client pings more than once every 2 seconds, terminate the connection
		PermitWithoutStream: true,            // Allow pings even when there are no active streams
	}

	grpcServer := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(alivePolicy),
		grpc.MaxRecvMsgSize(10*1024*1024),
		grpc.MaxSendMsgSize(2*server.MaxReadSize),
	)
	server.RegisterCacheFSService(grpcServer, cacheServer)
	reflection.Register(grpcServer) // Register reflection service on gRPC server.

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%s", conf.Address, conf.Port))
	if err != nil {
		log.Fatalf("%v", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.WithFields(log.Fields{"signal": sig}).Info("cachefsdmain::main::main; shutting down")
		grpcServer.GracefulStop()
	}()

	log.WithFields(log.Fields{"address": listener.Addr().String()}).Info("cachefsdmain::main::main; serving")
	if err := grpcServer.Serve(listener); err != nil {
		log.Errorf("cachefsdmain::main::main; serve failed: %v", err)
	}

	if err := cacheServer.Destroy(); err != nil {
		log.Fatalf("%v", err)
	}
	log.Info("cachefsdmain::main::main; done")
}
