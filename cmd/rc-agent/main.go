package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LanternOps/rc-agent/internal/config"
	"github.com/LanternOps/rc-agent/internal/deviceid"
	"github.com/LanternOps/rc-agent/internal/logging"
	"github.com/LanternOps/rc-agent/internal/secmem"
	"github.com/LanternOps/rc-agent/internal/session"
)

var (
	version = "0.1.0"
	cfgFile string
	token   string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "rc-agent",
	Short: "Remote control streaming agent",
	Long:  `rc-agent captures the local screen, encodes it, and streams it over a topic-multiplexed WebSocket channel to a remote-control backend.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent",
	Run: func(cmd *cobra.Command, args []string) {
		runAgent()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rc-agent v%s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check agent configuration status",
	Run: func(cmd *cobra.Command, args []string) {
		checkStatus()
	},
}

var setTokenCmd = &cobra.Command{
	Use:   "set-token <token>",
	Short: "Persist the device auth token used to join the control channel",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		tok := token
		if len(args) == 1 {
			tok = args[0]
		}
		if tok == "" {
			fmt.Fprintln(os.Stderr, "a token is required (positional argument or --token)")
			os.Exit(1)
		}
		setToken(tok)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/rc-agent/agent.yaml)")
	setTokenCmd.Flags().StringVar(&token, "token", "", "device token (alternative to the positional argument)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setTokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging sets up structured logging from config. Call after config.Load().
func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, 10, 3)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")
}

// runAgent loads config, resolves the device identity, and runs the
// SessionController until a shutdown signal arrives.
func runAgent() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	initLogging(cfg)

	deviceID, err := deviceid.Resolve(cfg.DeviceID)
	if err != nil {
		log.Error("failed to resolve device id", "error", err)
		os.Exit(1)
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = deviceID
		if saveErr := config.SaveTo(cfg, cfgFile); saveErr != nil {
			log.Warn("failed to persist resolved device id", "error", saveErr)
		}
	}

	if cfg.ServerURL == "" {
		log.Error("server_url is not configured")
		os.Exit(1)
	}

	secureToken := secmem.NewSecureString(cfg.DeviceToken)
	cfg.DeviceToken = ""
	defer secureToken.Zero()

	log.Info("starting agent",
		"version", version,
		"deviceId", deviceID,
		"server", cfg.ServerURL,
	)

	controller := session.New(session.Config{
		DeviceID:                 deviceID,
		DeviceToken:              secureToken.Reveal(),
		ServerURL:                cfg.ServerURL,
		ControlTopicPrefix:       cfg.ControlTopicPrefix,
		MediaTopicPrefix:         cfg.MediaTopicPrefix,
		FrameBufferCapacity:      cfg.FrameBufferCapacity,
		CaptureMaxWidth:          cfg.CaptureMaxWidth,
		CaptureMaxHeight:         cfg.CaptureMaxHeight,
		HeartbeatIntervalSeconds: cfg.HeartbeatIntervalSeconds,
		PrimaryFPS:               cfg.PrimaryFPS,
		PrimaryBitrateBps:        cfg.PrimaryBitrateBps,
		FallbackFPS:              cfg.FallbackFPS,
		FallbackQuality:          cfg.FallbackQuality,
	}, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- controller.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("shutting down agent")
	case err := <-errCh:
		if err != nil {
			log.Error("agent exited with error", "error", err)
		}
	}

	controller.Stop()
	log.Info("agent stopped")
}

// setToken persists a device token to the config file without requiring the
// agent to be running. Matches spec §6's "one opaque device token (set-once,
// reread on process start)".
func setToken(tok string) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		cfg = config.Default()
	}
	cfg.DeviceToken = tok
	if err := config.SaveTo(cfg, cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to save config: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Device token saved.")
}

func checkStatus() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Println("Status: not configured")
		return
	}

	deviceID := cfg.DeviceID
	if deviceID == "" {
		if resolved, err := deviceid.Resolve(""); err == nil {
			deviceID = resolved
		}
	}

	fmt.Println("Status: configured")
	fmt.Printf("Device ID: %s\n", deviceID)
	fmt.Printf("Server: %s\n", cfg.ServerURL)
	fmt.Printf("Token set: %v\n", cfg.DeviceToken != "")
	fmt.Printf("Primary FPS: %d, bitrate: %d bps\n", cfg.PrimaryFPS, cfg.PrimaryBitrateBps)
	fmt.Printf("Fallback FPS: %d, quality: %d\n", cfg.FallbackFPS, cfg.FallbackQuality)
}
