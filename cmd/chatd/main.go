// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/zfogg/ascii-chat/internal/config"
	"github.com/zfogg/ascii-chat/internal/server"
)

var (
	address      = flag.String("address", "", "Listen address (overrides config)")
	port         = flag.Int("port", 0, "Listen port (overrides config)")
	noAudioMixer = flag.Bool("no-audio-mixer", false, "Disable the audio mixer (video only)")
	useWebsocket = flag.Bool("websocket", false, "Serve over WebSocket instead of raw TCP")
	configPath   = flag.String("config", "chatd.json", "Path to the server config file")
	showHelp     = flag.Bool("h", false, "Show help")
	version      = flag.Bool("version", false, "Show version")
)

var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("chatd v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	cfg, _, err := config.Ensure(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *address != "" {
		cfg.Server.Address = *address
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *noAudioMixer {
		cfg.Server.NoAudioMixer = true
	}
	if *useWebsocket {
		cfg.Server.UseWebsocket = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	printBanner(cfg)

	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Address, fmt.Sprint(cfg.Server.Port)))
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down gracefully...")
		cancel()
	}()

	s := server.New(cfg)
	if cfg.Server.UseWebsocket {
		err = s.ServeWS(ctx, ln)
	} else {
		err = s.Serve(ctx, ln)
	}
	if err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func showUsage() {
	fmt.Println("chatd - ASCII conferencing server")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  chatd [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --address string      Listen address (overrides config)")
	fmt.Println("  --port int            Listen port (overrides config)")
	fmt.Println("  --no-audio-mixer      Disable the audio mixer")
	fmt.Println("  --websocket           Serve over WebSocket instead of raw TCP")
	fmt.Println("  --config string       Path to config file (default chatd.json)")
	fmt.Println("  -h                    Show this help message")
	fmt.Println("  -version              Show version information")
}

func printBanner(cfg config.Config) {
	fmt.Println("chatd — listening")
	fmt.Printf("  address: %s:%d\n", cfg.Server.Address, cfg.Server.Port)
	fmt.Printf("  max clients: %d\n", cfg.Server.MaxClients)
	fmt.Printf("  audio mixer: %v\n", !cfg.Server.NoAudioMixer)
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
