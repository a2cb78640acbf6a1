package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	envFile string
	logger  = logrus.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "exposerver",
	Short: "Expose a directory over HTTP with uploads, metadata and request logging",
	Long: `exposerver serves a local directory (or a single file) over HTTP with a
browsable listing, file uploads, EXIF/metadata extraction and a log of every
request's headers. Optional HTTP Basic authentication guards every route.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.exposerver.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringP("outfile", "o", "headers.log", "Request log file (a .json extension selects JSON records)")

	// Bind flags to viper
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("log-json"))
	_ = viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("outfile"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", envFile, err)
		}
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".exposerver" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".exposerver")
	}

	// EXPOSERVER_SERVER_PORT maps to server.port
	viper.SetEnvPrefix("exposerver")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Configure logging
	setupLogging()
}

func setupLogging() {
	// Set log level
	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		logger.Warnf("Invalid log level '%s', using 'info'", viper.GetString("log.level"))
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Set log format
	if viper.GetBool("log.json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}

// GetLogger returns the process logger
func GetLogger() *logrus.Logger {
	return logger
}
