// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zfogg/ascii-chat/internal/clientapp"
	"github.com/zfogg/ascii-chat/internal/config"
)

var (
	address      = flag.String("address", "", "Server address (overrides config)")
	port         = flag.Int("port", 0, "Server port (overrides config)")
	audio        = flag.Bool("audio", true, "Capture and play audio")
	color        = flag.Bool("color", true, "Render in color")
	width        = flag.Int("width", 0, "Terminal grid width (overrides config)")
	height       = flag.Int("height", 0, "Terminal grid height (overrides config)")
	useWebsocket = flag.Bool("websocket", false, "Connect over WebSocket instead of raw TCP")
	configPath   = flag.String("config", "chat.json", "Path to the client config file")
	showHelp     = flag.Bool("h", false, "Show help")
	version      = flag.Bool("version", false, "Show version")
)

var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("chat v%s\n", appVersion)
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
		cfg.Client.Address = *address
	}
	if *port != 0 {
		cfg.Client.Port = *port
	}
	cfg.Client.Audio = *audio
	cfg.Client.Color = *color
	if *width != 0 {
		cfg.Client.Width = *width
	}
	if *height != 0 {
		cfg.Client.Height = *height
	}
	if *useWebsocket {
		cfg.Client.UseWebsocket = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	app, err := clientapp.Dial(cfg)
	if err != nil {
		log.Fatalf("failed to connect to %s:%d: %v", cfg.Client.Address, cfg.Client.Port, err)
	}

	fmt.Printf("connected to %s:%d — press Ctrl+C to leave\n", cfg.Client.Address, cfg.Client.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nleaving...")
		cancel()
	}()

	err = app.Run(ctx, clientapp.Callbacks{
		OnASCIIFrame: func(payload []byte) {
			fmt.Print("\x1b[H", string(payload))
		},
		OnClearConsole: func() {
			fmt.Print("\x1b[2J\x1b[H")
		},
		OnServerState: func(clientIDs []uint32) {
			// Roster updates are silent by default; a future UI can surface
			// clientIDs as a participant list.
		},
	})
	if err != nil {
		log.Fatalf("session ended: %v", err)
	}
}

func showUsage() {
	fmt.Println("chat - ASCII conferencing client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  chat [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --address string      Server address (overrides config)")
	fmt.Println("  --port int            Server port (overrides config)")
	fmt.Println("  --audio               Capture and play audio (default true)")
	fmt.Println("  --color               Render in color (default true)")
	fmt.Println("  --width int           Terminal grid width (overrides config)")
	fmt.Println("  --height int          Terminal grid height (overrides config)")
	fmt.Println("  --websocket           Connect over WebSocket instead of raw TCP")
	fmt.Println("  --config string       Path to config file (default chat.json)")
	fmt.Println("  -h                    Show this help message")
	fmt.Println("  -version              Show version information")
}
