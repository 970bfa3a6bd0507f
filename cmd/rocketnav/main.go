// Command rocketnav runs the flight computer over simulated, logged or live
// sensor data and reports the estimate.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/RocketScienceOfficial/rocket-nav-lib/config"
	"github.com/RocketScienceOfficial/rocket-nav-lib/flightweb"
)

func main() {
	cobra.CheckErr(NewCmd().ExecuteContext(context.Background()))
}

func NewCmd() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "rocketnav [command] [flags]",
		Short:         "rocketnav estimates rocket attitude, position and flight phase",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: setupLogging,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "`<file>` YAML configuration, over the defaults")
	pf.String("log-file", "", "`<file>` rotating log file, stderr when empty")
	pf.Int("log-max-size", 10, "`<MB>` log file size before rotation")
	pf.Int("log-max-backups", 3, "`<n>` rotated log files to keep")

	runFlags := func(cmd *cobra.Command) {
		f := cmd.Flags()
		f.String("db", "", "`<file>` SQLite flight log")
		f.String("out", "", "`<file>` CSV of the estimates")
		f.String("plot", "", "`<dir>` directory for PNG plots")
		f.String("chart", "", "`<file>` HTML chart of the run")
		f.String("serve", "", "`<url>` websocket room to send telemetry to")
	}

	simCmd := &cobra.Command{
		Use:   "sim [flags]",
		Short: "Run the flight computer over a simulated flight",
		Args:  cobra.NoArgs,
		RunE:  doSim,
	}
	runFlags(simCmd)
	simCmd.Flags().StringP("scenario", "s", scenarioParachute, "`<name>` scenario: parachute or boost")
	simCmd.Flags().Int64("seed", 1, "`<n>` noise seed")
	simCmd.Flags().Int("steps", 1000, "`<n>` parachute scenario length")
	simCmd.Flags().Float64("height", 1000, "`<m>` parachute scenario start height")
	simCmd.Flags().String("records", "", "`<file>` write the simulated sensor records as CSV")

	replayCmd := &cobra.Command{
		Use:   "replay [flags]",
		Short: "Run the flight computer over a sensor CSV log",
		Args:  cobra.NoArgs,
		RunE:  doReplay,
	}
	runFlags(replayCmd)
	replayCmd.Flags().StringP("input", "i", "", "`<file>` sensor CSV log")
	replayCmd.MarkFlagRequired("input")

	liveCmd := &cobra.Command{
		Use:   "live [flags]",
		Short: "Run the flight computer on serial telemetry",
		Args:  cobra.NoArgs,
		RunE:  doLive,
	}
	runFlags(liveCmd)
	liveCmd.Flags().String("serial", "", "`<port>` serial device, e.g. /dev/ttyUSB0")
	liveCmd.Flags().Int("baud", 115200, "`<rate>` serial baud rate")
	liveCmd.Flags().Int("bmp280", -1, "`<bus>` I2C bus of a BMP280 barometer, none when negative")
	liveCmd.MarkFlagRequired("serial")

	serveCmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "Serve the telemetry websocket room",
		Args:  cobra.NoArgs,
		RunE:  doServe,
	}
	serveCmd.Flags().String("addr", fmt.Sprintf(":%d", flightweb.Port), "`<addr>` listen address")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return cfg.Write(cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(
		simCmd,
		replayCmd,
		liveCmd,
		serveCmd,
		configCmd,
	)
	return rootCmd
}

func setupLogging(cmd *cobra.Command, args []string) error {
	fn, err := cmd.Flags().GetString("log-file")
	if err != nil {
		return err
	}
	var w io.Writer = os.Stderr
	if fn != "" {
		maxSize, _ := cmd.Flags().GetInt("log-max-size")
		maxBackups, _ := cmd.Flags().GetInt("log-max-backups")
		w = &lumberjack.Logger{
			Filename:   fn,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			LocalTime:  true,
		}
	}
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return nil
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	fn, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	if fn == "" {
		return config.Default(), nil
	}
	return config.Load(fn)
}
