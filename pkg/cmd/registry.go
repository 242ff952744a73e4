// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"log/slog"

	"github.com/careloop/careloop/pkg/actions/applytag"
	"github.com/careloop/careloop/pkg/actions/createtask"
	"github.com/careloop/careloop/pkg/actions/sendmessage"
	"github.com/careloop/careloop/pkg/notify"
	"github.com/careloop/careloop/pkg/registry"
	"github.com/careloop/careloop/pkg/subjects"
)

// NewRegistry builds the action registry with the full closed set of action
// types wired to their external dependencies.
func NewRegistry(logger *slog.Logger, channel notify.Channel, store subjects.Store) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterAction(sendmessage.NewActionFactory(channel))
	reg.RegisterAction(applytag.NewActionFactory(store))
	reg.RegisterAction(createtask.NewActionFactory(store))

	return reg
}
