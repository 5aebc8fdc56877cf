package main

import (
	"os"

	"github.com/mkb23/overcode/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
