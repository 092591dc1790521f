// Command hoverd is a minimal standalone binary around a hover.Node. It
// exists to show how a host application embeds the module: load config,
// construct a Node, start it, and react to the events it posts. Real
// embedders will normally skip the process and call hover.New directly
// from their own main.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/apohrebniak/hover"
	"go.uber.org/zap"
)

func main() {
	flags := flag.NewFlagSet("hoverd", flag.ExitOnError)
	configPath := flags.String("config", "", "path to a YAML config file; defaults are used when omitted")
	envPrefix := flags.String("env-prefix", "HOVER", "environment variable prefix used to override config fields")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	config := hover.NewConfig()
	if *configPath != "" {
		loaded, err := hover.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load config:", err)
			os.Exit(1)
		}
		config = loaded
	}
	if err := config.ApplyEnv(*envPrefix); err != nil {
		fmt.Fprintln(os.Stderr, "apply env overrides:", err)
		os.Exit(1)
	}

	node, err := hover.New(config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "start node:", err)
		os.Exit(1)
	}

	node.AddEventListener(func(e hover.Event) {
		switch e.Type {
		case hover.EventMemberAdded:
			node.Logger().Info("member joined", zap.String("id", e.Node.ID.String()))
		case hover.EventMemberLeft:
			node.Logger().Info("member left", zap.String("id", e.Node.ID.String()))
		}
	})

	node.Start()
	node.Logger().Info("hoverd started",
		zap.String("local", node.Cluster().LocalNode().Address.String()))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	node.Logger().Info("hoverd shutting down")
	if err := node.Stop(); err != nil {
		fmt.Fprintln(os.Stderr, "stop node:", err)
		os.Exit(1)
	}
}
