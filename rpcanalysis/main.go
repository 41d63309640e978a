package main

import (
	"os"
)

var logger Logger

func init() {
	logger = newLogger(os.Stdout, os.Stderr)
}

func main() {
	if err := RootCommand().Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
