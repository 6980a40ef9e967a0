////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package push

import (
	"bufio"
	"bytes"
	"context"
	"io"

	jww "github.com/spf13/jwalterweatherman"
)

// ReadLines streams newline delimited JSON events from r. Undecodable lines are
// logged and skipped. The channel closes at EOF or when ctx is done.
func ReadLines(ctx context.Context, r io.Reader) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		line := 0
		for scanner.Scan() {
			line++
			data := bytes.TrimSpace(scanner.Bytes())
			if len(data) == 0 {
				continue
			}
			e, err := DecodeEvent(data)
			if err != nil {
				jww.WARN.Printf("[Push] Skipping line %d: %+v", line, err)
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			jww.ERROR.Printf("[Push] Stopped reading events: %+v", err)
		}
	}()
	return out
}
