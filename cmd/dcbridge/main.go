// Command dcbridge is the CLI entry point.
//
// This tool bootstraps an unordered, unreliable WebRTC DataChannel between
// two endpoints through a WebSocket control link. The responder runs the
// control-link server; the initiator dials it and sends the offer. After the
// channel opens, lines typed on stdin are sent as messages and received
// messages are printed.
//
// It can be launched interactively (no --role) or non-interactively via
// flags.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	flag "github.com/spf13/pflag"

	"github.com/1ureka/dcbridge/internal/app"
	"github.com/1ureka/dcbridge/internal/config"
	"github.com/1ureka/dcbridge/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	defaults := config.Default()

	// CLI flags.
	role := flag.StringP("role", "r", "", "Role: initiator or responder")
	host := flag.String("host", defaults.Hostname, "Control-link server host to dial (initiator only)")
	port := flag.IntP("port", "p", defaults.Port, "Control-link server port to dial (initiator only), 1~65535")
	secure := flag.Bool("secure", false, "Dial wss:// instead of ws:// (initiator only)")
	listen := flag.String("listen", defaults.Listen, "Address the control-link server listens on (responder only)")
	configPath := flag.StringP("config", "c", "", "Path to a YAML config file; flags override it")
	stun := flag.StringArray("stun", nil, "STUN server URL, repeatable (default: Google public servers)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := defaults
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	applyFlags(cfg, role, host, port, secure, listen, stun, debugMode)

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("dcbridge v%s", version))
	pterm.Println()

	if cfg.Role == "" {
		// No --role flag and none in the config file → interactive mode.
		askRole(cfg)
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		util.LogError("session ended: %v", err)
		os.Exit(1)
	}

	util.LogInfo("session closed")
}

// applyFlags copies explicitly set flags over cfg.
func applyFlags(cfg *config.Config, role, host *string, port *int, secure *bool, listen *string, stun *[]string, debug *bool) {
	if flag.CommandLine.Changed("role") {
		cfg.Role = config.Role(*role)
	}
	if flag.CommandLine.Changed("host") {
		cfg.Hostname = *host
	}
	if flag.CommandLine.Changed("port") {
		cfg.Port = *port
	}
	if flag.CommandLine.Changed("secure") {
		cfg.Secure = *secure
	}
	if flag.CommandLine.Changed("listen") {
		cfg.Listen = *listen
	}
	if flag.CommandLine.Changed("stun") {
		cfg.STUNServers = *stun
	}
	if flag.CommandLine.Changed("debug") {
		cfg.Debug = *debug
	}
}

// ---------------------------------------------------------------------------
// Interactive prompts
// ---------------------------------------------------------------------------

// askRole fills cfg from interactive prompts when no role was given.
func askRole(cfg *config.Config) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Responder: wait for a peer", "Initiator: connect to a responder"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(role, "Responder") {
		cfg.Role = config.RoleResponder
		cfg.Listen = askListen(cfg.Listen)
		return
	}

	cfg.Role = config.RoleInitiator
	cfg.Hostname = askText("Responder host", cfg.Hostname)
	cfg.Port = askPort("Responder port (1 ~ 65535)", cfg.Port)
	cfg.Secure, _ = pterm.DefaultInteractiveConfirm.
		WithDefaultText("Use a secure (wss://) connection?").
		WithDefaultValue(cfg.Secure).
		Show()
	pterm.Println()
}

// askText prompts for a non-empty string, keeping def on empty input.
func askText(prompt, def string) string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(prompt).
		WithDefaultValue(def).
		Show()
	pterm.Println()

	if v := strings.TrimSpace(raw); v != "" {
		return v
	}
	return def
}

// askPort prompts the user for a port number until a valid one is entered.
func askPort(prompt string, def int) int {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			WithDefaultValue(strconv.Itoa(def)).
			Show()

		port, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && port >= 1 && port <= 65535 {
			pterm.Println()
			return port
		}

		util.LogWarning("invalid port number: must be 1 ~ 65535")
		pterm.Println()
	}
}

// askListen prompts for a host:port listen address until a valid one is
// entered.
func askListen(def string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Listen address (host:port)").
			WithDefaultValue(def).
			Show()

		addr := strings.TrimSpace(raw)
		if _, _, err := net.SplitHostPort(addr); err == nil {
			pterm.Println()
			return addr
		}

		util.LogWarning("invalid listen address: expected host:port")
		pterm.Println()
	}
}
