package main

import (
	"os"

	"github.com/hashicorp-forge/indexsync/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
