package main

import (
	"os"

	"github.com/confstore/confstore/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
