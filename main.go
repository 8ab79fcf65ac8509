package main

import (
	"fmt"
	"os"

	"github.com/tphakala/rtp-recorder/cmd"
	"github.com/tphakala/rtp-recorder/internal/conf"
)

func main() {
	settings := &conf.Settings{}
	if err := cmd.RootCommand(settings).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
