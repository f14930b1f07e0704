// Command namingd runs the naming server: the singleton process owning
// the directory tree, exposing the Service and Registration interfaces
// on their well-known ports.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"

	"github.com/nicolagi/dfs/config"
	"github.com/nicolagi/dfs/naming"
	"github.com/nicolagi/dfs/tree"
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

	var opts []tree.TreeOption
	if cfg.ReplicationThreshold != 0 {
		opts = append(opts, tree.WithReplicationThreshold(cfg.ReplicationThreshold))
	}
	server, err := naming.NewServer(opts...)
	if err != nil {
		log.Fatalf("Could not create naming server: %v", err)
	}
	server.OnStopped = func(cause error) {
		if cause != nil {
			log.Printf("Naming server stopped: %v", cause)
		}
	}

	serviceAddr := cfg.ServiceListenAddr
	if serviceAddr == "" {
		serviceAddr = naming.ServiceAddr("")
	}
	registrationAddr := cfg.RegistrationListenAddr
	if registrationAddr == "" {
		registrationAddr = naming.RegistrationAddr("")
	}
	if err := server.Start(cfg.ListenNet, serviceAddr, registrationAddr); err != nil {
		log.Fatalf("Could not start naming server: %v", err)
	}
	log.Printf("Serving clients on %v, storage servers on %v.", server.ServiceAddrActual(), server.RegistrationAddrActual())

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	log.Printf("Got signal %q, quitting.", sig)
	server.Stop()
}
