package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/karlfish/fishlog/internal/daemon"
	"github.com/karlfish/fishlog/internal/paths"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profile := paths.Resolve(*profileFlag)
	if err := paths.ValidateName(profile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Profile: profile}),
	)

	app.Run()
}
