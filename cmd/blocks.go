////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// The blocks subcommand manages the viewer's own block list

package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

// blocksCmd is the subcommand to edit and list the profiles the viewer
// blocked.
var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "Manage the profiles you blocked yourself",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s := initStore()
		defer s.Close()
		ctx := context.Background()

		if viper.IsSet(blocksAddFlag) {
			for _, id := range viper.GetStringSlice(blocksAddFlag) {
				profileID, err := strconv.ParseInt(id, 10, 64)
				if err != nil {
					jww.FATAL.Panicf("Invalid profile ID %q: %+v", id, err)
				}
				if err = s.AddBlock(ctx, profileID); err != nil {
					jww.FATAL.Panicf("%+v", err)
				}
			}
		}

		if viper.IsSet(blocksRemoveFlag) {
			for _, id := range viper.GetStringSlice(blocksRemoveFlag) {
				profileID, err := strconv.ParseInt(id, 10, 64)
				if err != nil {
					jww.FATAL.Panicf("Invalid profile ID %q: %+v", id, err)
				}
				if err = s.RemoveBlock(ctx, profileID); err != nil {
					jww.FATAL.Panicf("%+v", err)
				}
			}
		}

		blocks, err := s.Blocks(ctx)
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		for _, id := range blocks {
			fmt.Println(id)
		}
	},
}

func init() {
	blocksCmd.Flags().StringSlice(blocksAddFlag, nil,
		"Profile IDs to add to the block list")
	viper.BindPFlag(blocksAddFlag, blocksCmd.Flags().Lookup(blocksAddFlag))

	blocksCmd.Flags().StringSlice(blocksRemoveFlag, nil,
		"Profile IDs to remove from the block list")
	viper.BindPFlag(blocksRemoveFlag, blocksCmd.Flags().Lookup(blocksRemoveFlag))

	rootCmd.AddCommand(blocksCmd)
}
