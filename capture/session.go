// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

import (
	"context"
	"fmt"

	"github.com/go-lpc/usblag/collapse"
	"github.com/go-lpc/usblag/trigger"
	"golang.org/x/sync/errgroup"
)

// Session couples a read loop with the trigger generator stimulating the
// device under test.
type Session struct {
	Source  Source
	Engine  *collapse.Engine
	Trigger trigger.Runner // optional
}

// Run starts the trigger generator and runs the read loop.
// The generator is stopped as soon as the read loop exits. A failing
// generator stops the read loop.
func (sess *Session) Run(ctx context.Context, opts ...Option) (Result, error) {
	grp, gctx := errgroup.WithContext(ctx)
	trg, stop := context.WithCancel(gctx)
	defer stop()

	var res Result

	grp.Go(func() error {
		defer stop()
		var err error
		res, err = Run(gctx, sess.Source, sess.Engine, opts...)
		return err
	})

	if sess.Trigger != nil {
		grp.Go(func() error {
			err := sess.Trigger.Run(trg)
			if err != nil {
				return fmt.Errorf("capture: trigger generator failed: %w", err)
			}
			return nil
		})
	}

	err := grp.Wait()
	return res, err
}
