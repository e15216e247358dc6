package dlcmanager

import "github.com/btcdlc/dlcd/dlclog"

var log = dlclog.NewSubsystem("DMGR")
