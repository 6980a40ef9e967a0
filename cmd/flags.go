////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

// This is a comprehensive list of CLI flag name constants. Organized by
// subcommand, with root level CLI flags at the top of the list. Pulling flags
// using Viper should use the constants defined here.
const (
	//////////////// Root flags ///////////////////////////////////////////////

	// Log flags
	logLevelFlag = "logLevel"
	logFlag      = "log"

	// Config
	configFlag = "config"
	paramsFlag = "params"

	// Storage
	dbFlag = "db"

	// Detection
	viewerFlag       = "viewer"
	forceOldFlag     = "force-old-anti-block-behavior"
	useToastsFlag    = "anti-block-use-toasts"
	profileURLFlag   = "profile-url"
	profileRateFlag  = "profile-rate"
	profileTokenFlag = "profile-token"
	dedupWindowFlag  = "dedup-window"
	drainTimeoutFlag = "drain-timeout"

	///////////////// Diff subcommand flags ///////////////////////////////////
	diffPageFlag   = "page"
	diffUpdateFlag = "update"

	///////////////// Watch subcommand flags //////////////////////////////////
	watchInputFlag    = "input"
	watchAmqpURLFlag  = "amqp-url"
	watchExchangeFlag = "amqp-exchange"
	watchQueueFlag    = "amqp-queue"
	watchTimeoutFlag  = "timeout"

	///////////////// Blocks subcommand flags /////////////////////////////////
	blocksAddFlag    = "add"
	blocksRemoveFlag = "remove"
)
