////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package cmd initializes the CLI and config parsers as well as the logger.
package cmd

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/blockwatch/antiblock"
)

// Execute adds all child commands to the root command and sets flags
// appropriately.  This is called by main.main(). It only needs to
// happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blockwatch",
	Short: "Detects when other users block or unblock you",
	Long: `Detects when other users block or unblock you by comparing inbox
pages against the local conversation cache and by watching conversation
removal push events.`,
	Args: cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLog(viper.GetUint(logLevelFlag), viper.GetString(logFlag))
	},
}

func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		// Disable stdout output
		jww.SetStdoutOutput(ioutil.Discard)
		// Use log file
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold > 1 {
		jww.INFO.Printf("log level set to: TRACE")
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else if threshold == 1 {
		jww.INFO.Printf("log level set to: DEBUG")
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		jww.INFO.Printf("log level set to: INFO")
		jww.SetStdoutThreshold(jww.LevelInfo)
		jww.SetLogThreshold(jww.LevelInfo)
	}
}

// init is the initialization function for Cobra which defines commands
// and flags.
func init() {
	// NOTE: The point of init() is to be declarative.
	// There is one init in each sub command. Do not put variable declarations
	// here, and ensure all the Flags are of the *P variety, unless there's a
	// very good reason not to have them as local params to sub command."
	cobra.OnInitialize(initConfig)

	defaults := antiblock.GetDefaultParams()

	rootCmd.PersistentFlags().UintP(logLevelFlag, "v", 0,
		"Verbose mode for debugging")
	viper.BindPFlag(logLevelFlag, rootCmd.PersistentFlags().Lookup(logLevelFlag))

	rootCmd.PersistentFlags().StringP(logFlag, "l", "-",
		"Path to the log output path (- is stdout)")
	viper.BindPFlag(logFlag, rootCmd.PersistentFlags().Lookup(logFlag))

	rootCmd.PersistentFlags().StringP(configFlag, "c", "",
		"Path to a config file (any format viper reads)")
	viper.BindPFlag(configFlag, rootCmd.PersistentFlags().Lookup(configFlag))

	rootCmd.PersistentFlags().String(paramsFlag, "",
		"JSON encoded detection parameters, overridden by explicit flags")
	viper.BindPFlag(paramsFlag, rootCmd.PersistentFlags().Lookup(paramsFlag))

	rootCmd.PersistentFlags().StringP(dbFlag, "d", "blockwatch.db",
		"Path to the conversation cache database (empty for in memory)")
	viper.BindPFlag(dbFlag, rootCmd.PersistentFlags().Lookup(dbFlag))

	rootCmd.PersistentFlags().Int64P(viewerFlag, "u", 0,
		"Profile ID of the signed in user")
	viper.BindPFlag(viewerFlag, rootCmd.PersistentFlags().Lookup(viewerFlag))

	rootCmd.PersistentFlags().Bool(forceOldFlag, false,
		"Disable detection and hide every conversation removal")
	viper.BindPFlag(forceOldFlag, rootCmd.PersistentFlags().Lookup(forceOldFlag))

	rootCmd.PersistentFlags().Bool(useToastsFlag, false,
		"Report outcomes as toasts instead of notifications")
	viper.BindPFlag(useToastsFlag, rootCmd.PersistentFlags().Lookup(useToastsFlag))

	rootCmd.PersistentFlags().String(profileURLFlag, defaults.Profile.BaseURL,
		"Base URL of the profile API")
	viper.BindPFlag(profileURLFlag, rootCmd.PersistentFlags().Lookup(profileURLFlag))

	rootCmd.PersistentFlags().Int(profileRateFlag, defaults.Profile.MaxPerSecond,
		"Maximum profile lookups per second")
	viper.BindPFlag(profileRateFlag, rootCmd.PersistentFlags().Lookup(profileRateFlag))

	rootCmd.PersistentFlags().String(profileTokenFlag, "",
		"Authorization header sent with profile lookups")
	viper.BindPFlag(profileTokenFlag, rootCmd.PersistentFlags().Lookup(profileTokenFlag))

	rootCmd.PersistentFlags().Duration(dedupWindowFlag, defaults.DedupWindow,
		"How long an outcome suppresses an identical one")
	viper.BindPFlag(dedupWindowFlag, rootCmd.PersistentFlags().Lookup(dedupWindowFlag))

	rootCmd.PersistentFlags().Duration(drainTimeoutFlag, defaults.DrainTimeout,
		"How long shutdown waits for running verifications")
	viper.BindPFlag(drainTimeoutFlag, rootCmd.PersistentFlags().Lookup(drainTimeoutFlag))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetEnvPrefix("BLOCKWATCH")
	viper.AutomaticEnv()

	cfgFile := viper.GetString(configFlag)
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		jww.FATAL.Panicf("Failed to read config file %s: %+v", cfgFile, err)
	}
	jww.DEBUG.Printf("Using config file %s", viper.ConfigFileUsed())
}
