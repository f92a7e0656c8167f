// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

// tqftpserv serves files to coprocessors over the QRTR bus using a
// TFTP-derived protocol. Requested names are rewritten onto host paths
// by a configurable translation table, compressed firmware artifacts
// are decompressed on the fly, and uploads from the coprocessors land
// on the host filesystem.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/a-wai/tqftpserv/internal/qrtr"
	"github.com/a-wai/tqftpserv/internal/server"
	"github.com/a-wai/tqftpserv/internal/translate"
	log "github.com/a-wai/tqftpserv/pkg/minilog"
)

// The TFTP service as registered with the QRTR name service.
const (
	serviceTFTP     = 4096
	serviceVersion  = 1
	serviceInstance = 0
)

var (
	f_conf   = flag.String("conf", "", "path to the translation config, built-in rules if empty")
	f_max    = flag.Int("max-transfers", 64, "maximum concurrent transfers, 0 for unlimited")
	f_syslog = flag.Bool("syslog", false, "also log to the local syslog daemon")
)

func main() {
	flag.Parse()

	log.Init()
	if *f_syslog {
		if err := log.AddSyslog("local", "", "tqftpserv", log.INFO); err != nil {
			log.Fatal("syslog: %v", err)
		}
	}

	rules := translate.Default()
	if *f_conf != "" {
		var err error
		rules, err = translate.ReadConfig(*f_conf)
		if err != nil {
			log.Fatal("reading %v: %v", *f_conf, err)
		}
	}

	fs := translate.New(rules)

	if *f_conf != "" {
		stop, err := fs.Watch(*f_conf)
		if err != nil {
			log.Fatal("watching %v: %v", *f_conf, err)
		}
		defer stop()
	}

	conn, err := qrtr.Open(0)
	if err != nil {
		log.Fatal("failed to open qrtr socket: %v", err)
	}

	if err := conn.Publish(serviceTFTP, serviceVersion, serviceInstance); err != nil {
		log.Fatal("failed to publish service: %v", err)
	}

	log.Info("serving tftp on %v with %v translation rules", conn.Addr(), len(rules))

	s := server.New(conn, fs)
	s.MaxTransfers = *f_max

	// close transfers cleanly on shutdown
	sig := make(chan os.Signal, 1024)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		s.Close()
		os.Exit(0)
	}()

	if err := s.Run(); err != nil {
		log.Fatal("server loop: %v", err)
	}
}
