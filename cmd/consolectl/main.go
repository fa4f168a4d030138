package main

import (
	"os"

	"opsconsole/cmd/consolectl/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
