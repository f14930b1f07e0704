// Command storaged runs a storage server: it serves the subtree of the
// local filesystem rooted at the configured directory, registering its
// contents with the naming server before accepting client traffic.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"

	"github.com/nicolagi/dfs/config"
	"github.com/nicolagi/dfs/storageserver"
)

func main() {
	if err := agent.Listen(agent.Options{}); err != nil {
		log.Printf("Could not start gops agent: %v", err)
	}

	base := flag.String("base", config.DefaultBaseDirectoryPath, "Base directory for configuration")
	flag.Parse()
	cfg, err := config.Load(*base)
	if err != nil {
		log.Fatalf("Could not load config from %q: %v", *base, err)
	}
	if cfg.NamingAddr == "" {
		log.Fatal("Config is missing naming-addr.")
	}
	if err := os.MkdirAll(cfg.StorageRoot, 0700); err != nil {
		log.Fatalf("Could not create storage root %q: %v", cfg.StorageRoot, err)
	}

	server, err := storageserver.NewServer(cfg.StorageRoot)
	if err != nil {
		log.Fatalf("Could not create storage server: %v", err)
	}
	server.OnStopped = func(cause error) {
		if cause != nil {
			log.Printf("Storage server stopped: %v", cause)
		}
	}
	if err := server.Start(cfg.ListenNet, cfg.StorageListenAddr, cfg.CommandListenAddr, cfg.NamingAddr); err != nil {
		log.Fatalf("Could not start storage server: %v", err)
	}
	ref := server.Ref(cfg.ListenNet)
	log.Printf("Serving %q: %s.", cfg.StorageRoot, ref)

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	log.Printf("Got signal %q, quitting.", sig)
	server.Stop()
}
