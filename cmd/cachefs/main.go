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
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const (
	defaultConfigFilePath = "/etc/cachefs-client.yaml"
)

func main() {
	app := cli.NewApp()
	app.Name = "cachefs"
	app.Usage = "Talk to a running cachefsd"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config,c",
			Usage: "Path of the client config file",
			Value: defaultConfigFilePath,
		},
		cli.StringFlag{
			Name:  "address,a",
			Usage: "Overrides the daemon address of the config",
		},
		cli.StringFlag{
			Name:  "port,p",
			Usage: "Overrides the daemon port of the config",
		},
		cli.StringFlag{
			Name:  "loglevel",
			Usage: "The level of log",
			Value: "warn",
		},
	}

	app.Before = func(ctx *cli.Context) error {
		level, err := log.ParseLevel(ctx.GlobalString("loglevel"))
		if err != nil {
			return err
		}
		log.SetLevel(level)
		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:      "open",
			Usage:     "Open a file in the cache and print its handle",
			ArgsUsage: "<path>",
			Action:    withArgCheck(needAtLeast(1), withClient(handleOpen)),
		},
		{
			Name:      "close",
			Usage:     "Close a handle",
			ArgsUsage: "<handle>",
			Action:    withArgCheck(needAtLeast(1), withClient(handleClose)),
		},
		{
			Name:      "read",
			Usage:     "Read a byte range through the cache and write it to stdout",
			ArgsUsage: "<handle> <offset> <count>",
			Action:    withArgCheck(needAtLeast(3), withClient(handleRead)),
		},
		{
			Name:      "cat",
			Usage:     "Open a file, read all of it through the cache and close it",
			ArgsUsage: "<path>",
			Action:    withArgCheck(needAtLeast(1), withClient(handleCat)),
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "chunk",
					Usage: "Bytes per read call",
					Value: 64 * 1024,
				},
			},
		},
		{
			Name:      "dump-cache",
			Usage:     "Append the cache state to a log file on the daemon host",
			ArgsUsage: "<log-path>",
			Action:    withArgCheck(needAtLeast(1), withClient(handleDumpCache)),
		},
		{
			Name:      "dump-stats",
			Usage:     "Append the hit and miss counters to a log file on the daemon host",
			ArgsUsage: "<log-path>",
			Action:    withArgCheck(needAtLeast(1), withClient(handleDumpStats)),
		},
		{
			Name:   "stats",
			Usage:  "Print the cache counters",
			Action: withClient(handleStats),
		},
		{
			Name:   "shell",
			Usage:  "Start an interactive shell",
			Action: withClient(handleShell),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "cachefs: %v\n", err)
		os.Exit(1)
	}
}
