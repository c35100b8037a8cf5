// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package group

import (
	"github.com/grailbio/base/config"
	"github.com/grailbio/bigmachine"
)

func init() {
	config.Register("gvamp", func(inst *config.Constructor) {
		var (
			ranks  int
			system bigmachine.System
		)
		inst.IntVar(&ranks, "ranks", 4, "number of ranks in the group")
		inst.InstanceVar(&system, "system", "", "the bigmachine system hosting the ranks; ranks run in-process if empty")
		inst.Doc = "gvamp configures the process group used by gvamp jobs"
		inst.New = func() (interface{}, error) {
			var r Runner
			if system != nil {
				r = NewBigmachine(system, ranks)
			} else {
				r = NewLocal(ranks)
			}
			return r, nil
		}
	})
}
