package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(defaultDialer).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "workerctl: %v\n", err)
		os.Exit(1)
	}
}
