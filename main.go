package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"YoloDetServer/config"
	"YoloDetServer/logger"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	ConfigFile  string
	Development bool
}

var flags globalFlags

var rootCmd = &cobra.Command{
	Use:   "yolodet",
	Short: "YOLO detection server over a native yolo_cpp_dll module",
	Long: `yolodet loads the yolo_cpp_dll CPU or GPU module at runtime, one
isolated copy per model, and serves detection over gRPC, HTTP and websocket.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flags.ConfigFile, "config", "c", config.DefaultFile, "config file")
	rootCmd.PersistentFlags().BoolVar(&flags.Development, "dev", false, "console logging at debug level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(sysinfoCmd)
}

// loadConfig reads the config file; a missing default file yields defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
			return config.Default(), nil
		}
		return config.Config{}, err
	}
	return cfg, nil
}

func initLogger(cfg config.Config) error {
	return logger.InitWithFile(cfg.Log.File, cfg.Log.Development || flags.Development)
}

func main() {
	Execute()
}
