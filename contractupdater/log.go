package contractupdater

import "github.com/btcdlc/dlcd/dlclog"

var log = dlclog.NewSubsystem("CUPD")
