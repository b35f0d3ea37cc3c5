package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

// VersionCode is the numeric build number reported to clients.
var VersionCode = 1

var rootCmd = &cobra.Command{
	Use:   "remotehand",
	Short: "RemoteHand is a remote-control agent for a host device",
	Long: `A remote-control agent that accepts JSON commands over a socket, guards them
behind a shared secret and forwards them to actions configured on the host.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
