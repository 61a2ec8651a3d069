// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"net/http"
	"sort"

	log "github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmtorrespalma/psem/pkg/sem"
)

// serveStatus exposes a plain text status page with the registered names
// and registry metrics, plus the prometheus scrape endpoint. Should be used
// for debugging only.
func serveStatus(addr string) {
	http.HandleFunc("/", statusHandler)
	http.Handle("/metrics", promhttp.Handler())

	log.Infof("status page listening on address %s", addr)
	err := http.ListenAndServe(addr, nil) // this blocks forever
	log.Fatalf("http listener returned error: %v", err)
}

func statusHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "named semaphores:\n")
	names := sem.Names()
	if len(names) == 0 {
		fmt.Fprintf(w, "  (none)\n")
	}
	for _, name := range names {
		fmt.Fprintf(w, "  %q\n", name)
	}

	fmt.Fprintf(w, "\nregistry ops:\n")
	stats := sem.OpStats()
	ops := make([]string, 0, len(stats))
	for op := range stats {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		fmt.Fprintf(w, "  %-8s %s\n", op, stats[op])
	}
}
