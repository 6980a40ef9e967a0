////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"encoding/json"
	"fmt"

	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/blockwatch/antiblock"
	"gitlab.com/elixxir/blockwatch/event"
	"gitlab.com/elixxir/blockwatch/profile"
	"gitlab.com/elixxir/blockwatch/stoppable"
	"gitlab.com/elixxir/blockwatch/storage"
)

// initParams builds the detection parameters from the params JSON and then
// applies every explicitly set flag or config value on top.
func initParams() antiblock.Params {
	params, err := antiblock.GetParameters(viper.GetString(paramsFlag))
	if err != nil {
		jww.FATAL.Panicf("Failed to parse params: %+v", err)
	}

	if viper.IsSet(viewerFlag) {
		params.ViewerID = viper.GetInt64(viewerFlag)
	}
	if viper.IsSet(forceOldFlag) {
		params.ForceOldBehavior = viper.GetBool(forceOldFlag)
	}
	if viper.IsSet(useToastsFlag) {
		params.UseToasts = viper.GetBool(useToastsFlag)
	}
	if viper.IsSet(profileURLFlag) {
		params.Profile.BaseURL = viper.GetString(profileURLFlag)
	}
	if viper.IsSet(profileRateFlag) {
		params.Profile.MaxPerSecond = viper.GetInt(profileRateFlag)
	}
	if viper.IsSet(profileTokenFlag) {
		if params.Profile.Headers == nil {
			params.Profile.Headers = make(map[string]string)
		}
		params.Profile.Headers["Authorization"] =
			viper.GetString(profileTokenFlag)
	}
	if viper.IsSet(dedupWindowFlag) {
		params.DedupWindow = viper.GetDuration(dedupWindowFlag)
	}
	if viper.IsSet(drainTimeoutFlag) {
		params.DrainTimeout = viper.GetDuration(drainTimeoutFlag)
	}

	if params.ViewerID == 0 {
		jww.FATAL.Panicf("A viewer profile ID is required (--%s)", viewerFlag)
	}
	return params
}

func initStore() *storage.Store {
	s, err := storage.NewStore(viper.GetString(dbFlag), "blockwatch")
	if err != nil {
		jww.FATAL.Panicf("%+v", err)
	}
	return s
}

// initManager creates the manager and starts the event service that prints
// every outcome as a JSON line.
func initManager(params antiblock.Params, s *storage.Store) (
	*antiblock.Manager, stoppable.Stoppable) {
	events := event.NewEventManager()
	err := events.RegisterEventCallback("stdout", printEvent)
	if err != nil {
		jww.FATAL.Panicf("%+v", err)
	}
	eventStop, err := events.EventService()
	if err != nil {
		jww.FATAL.Panicf("%+v", err)
	}

	lookup := profile.NewClient(params.Profile, nil)
	return antiblock.NewManager(params, s, s, lookup, logDispatcher{}, events),
		eventStop
}

func printEvent(e event.BlockEvent) {
	data, err := json.Marshal(e)
	if err != nil {
		jww.ERROR.Printf("Failed to marshal %s: %+v", e, err)
		return
	}
	fmt.Println(string(data))
}

// logDispatcher shows outcomes in the log.
type logDispatcher struct{}

func (logDispatcher) Toast(text string) {
	jww.INFO.Printf("[Toast] %s", text)
}

func (logDispatcher) Notify(n antiblock.Notification) error {
	jww.INFO.Printf("[Notification %d on %s] %s: %s", n.NotificationID,
		n.ChannelID, n.Title, n.Body)
	return nil
}
