////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// The diff subcommand runs the inbox comparison on a saved page

package cmd

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/blockwatch/antiblock"
	"gitlab.com/elixxir/blockwatch/inbox"
	"gitlab.com/elixxir/blockwatch/intercept"
	"gitlab.com/elixxir/blockwatch/stoppable"
)

// diffCmd is the subcommand to compare an inbox page with the cache.
var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare an inbox page with the local conversation cache",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		params := initParams()
		s := initStore()
		defer s.Close()

		m, eventStop := initManager(params, s)
		defer func() {
			// Let the event service print the last outcomes
			time.Sleep(100 * time.Millisecond)
			if err := eventStop.Close(); err == nil {
				_ = stoppable.WaitForStopped(eventStop, time.Second)
			}
		}()

		reg := intercept.NewRegistry()
		if err := m.Install(reg); err != nil {
			jww.FATAL.Panicf("%+v", err)
		}

		pagePath := viper.GetString(diffPageFlag)
		body, err := ioutil.ReadFile(pagePath)
		if err != nil {
			jww.FATAL.Panicf("Failed to read inbox page %s: %+v",
				pagePath, err)
		}

		// The fetch is replayed through the registry so the page reaches the
		// detector the same way a live fetch does.
		ctx := context.Background()
		fetch := func(context.Context, []interface{}) *intercept.Future {
			return intercept.Resolved(body, nil)
		}
		if _, err = reg.CallAsync(ctx, antiblock.FetchInboxKey, nil,
			fetch).Await(ctx); err != nil {
			jww.FATAL.Panicf("%+v", err)
		}

		if !viper.GetBool(diffUpdateFlag) {
			return
		}
		records, err := inbox.Decode(body, params.ViewerID)
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		if err = s.UpsertConversations(ctx, records); err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		jww.INFO.Printf("Cached %d conversations from %s", len(records),
			pagePath)
	},
}

func init() {
	diffCmd.Flags().StringP(diffPageFlag, "f", "inbox.json",
		"Path to a JSON inbox page as returned by the server")
	viper.BindPFlag(diffPageFlag, diffCmd.Flags().Lookup(diffPageFlag))

	diffCmd.Flags().Bool(diffUpdateFlag, false,
		"Store the page in the cache after comparing")
	viper.BindPFlag(diffUpdateFlag, diffCmd.Flags().Lookup(diffUpdateFlag))

	rootCmd.AddCommand(diffCmd)
}
