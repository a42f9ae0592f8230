package main

import (
	"fmt"
	"os"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
)

func rootCmd() *commander.Command {
	return &commander.Command{
		UsageLine: "sentiment",
		Short:     "BERT + BiLSTM + TextCNN sentiment classifier",
		Subcommands: []*commander.Command{
			trainCmd(),
			evalCmd(),
			serveCmd(),
			importCmd(),
			classifyCmd(),
		},
		Flag: *flag.NewFlagSet("sentiment", flag.ExitOnError),
	}
}

func main() {
	if err := rootCmd().Dispatch(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "**err**: %v\n", err)
		os.Exit(1)
	}
}
