////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// The watch subcommand consumes conversation removal push events

package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/blockwatch/push"
	"gitlab.com/elixxir/blockwatch/stoppable"
)

// watchCmd is the subcommand to run the push consumer.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch push events for conversation removals",
	Long: `Watch push events for conversation removals. Events are read as
newline delimited JSON from a file or stdin, or from a RabbitMQ queue when an
AMQP URL is given.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		params := initParams()
		s := initStore()
		defer s.Close()

		m, eventStop := initManager(params, s)

		ctx, cancel := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)
		defer cancel()
		if timeout := viper.GetDuration(watchTimeoutFlag); timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		events, closeSource := openPushSource(ctx)
		defer closeSource()

		consumer := m.StartPushConsumer(events)
		jww.INFO.Printf("Watching push events for viewer %d",
			params.ViewerID)

		<-ctx.Done()
		jww.INFO.Printf("Shutting down: %v", ctx.Err())

		for _, stop := range []stoppable.Stoppable{consumer, eventStop} {
			if !stop.IsRunning() {
				continue
			}
			if err := stop.Close(); err != nil {
				jww.WARN.Printf("Failed to stop %s: %+v", stop.Name(), err)
				continue
			}
			err := stoppable.WaitForStopped(stop, params.DrainTimeout)
			if err != nil {
				jww.WARN.Printf("%+v", err)
			}
		}
	},
}

// openPushSource returns the configured event stream and a function closing
// it.
func openPushSource(ctx context.Context) (<-chan push.Event, func()) {
	if viper.IsSet(watchAmqpURLFlag) {
		amqpParams := push.GetDefaultAMQPParams()
		amqpParams.URL = viper.GetString(watchAmqpURLFlag)
		if viper.IsSet(watchExchangeFlag) {
			amqpParams.Exchange = viper.GetString(watchExchangeFlag)
		}
		if viper.IsSet(watchQueueFlag) {
			amqpParams.Queue = viper.GetString(watchQueueFlag)
		}

		source, err := push.DialAMQP(amqpParams)
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		events, err := source.Events(ctx)
		if err != nil {
			_ = source.Close()
			jww.FATAL.Panicf("%+v", err)
		}
		return events, func() {
			if err := source.Close(); err != nil {
				jww.WARN.Printf("Failed to close AMQP source: %+v", err)
			}
		}
	}

	var r io.ReadCloser = os.Stdin
	if path := viper.GetString(watchInputFlag); path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			jww.FATAL.Panicf("Failed to open %s: %+v", path, err)
		}
		r = f
	}
	return push.ReadLines(ctx, r), func() { _ = r.Close() }
}

func init() {
	watchCmd.Flags().StringP(watchInputFlag, "i", "-",
		"File of newline delimited JSON push events (- is stdin)")
	viper.BindPFlag(watchInputFlag, watchCmd.Flags().Lookup(watchInputFlag))

	watchCmd.Flags().String(watchAmqpURLFlag, "",
		"Consume push events from this RabbitMQ broker instead")
	viper.BindPFlag(watchAmqpURLFlag, watchCmd.Flags().Lookup(watchAmqpURLFlag))

	watchCmd.Flags().String(watchExchangeFlag, "",
		"Exchange the push events are published to")
	viper.BindPFlag(watchExchangeFlag, watchCmd.Flags().Lookup(watchExchangeFlag))

	watchCmd.Flags().String(watchQueueFlag, "",
		"Queue to consume push events from")
	viper.BindPFlag(watchQueueFlag, watchCmd.Flags().Lookup(watchQueueFlag))

	watchCmd.Flags().Duration(watchTimeoutFlag, 0*time.Second,
		"Stop after this long (0 runs until interrupted)")
	viper.BindPFlag(watchTimeoutFlag, watchCmd.Flags().Lookup(watchTimeoutFlag))

	rootCmd.AddCommand(watchCmd)
}
