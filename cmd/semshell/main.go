// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/golang/glog"
)

var statusAddr = flag.String("status_addr", "", "if set, serve a status page and metrics on this address")

func main() {
	// We should send our own log output to stderr.
	flag.Set("logtostderr", "true")
	flag.Parse()

	s := newSemCli()

	if *statusAddr != "" {
		go serveStatus(*statusAddr)
	}

	// Catch INT and TERM signals so open handles are closed when the
	// process is forced to quit.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, os.Kill, syscall.SIGTERM)
	go func() {
		<-c
		s.stop()
		os.Exit(1)
	}()

	if err := s.run(os.Args); err != nil {
		log.Errorf("%v", err)
	}
	s.stop()
}
