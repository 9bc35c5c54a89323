package main

import (
	"github.com/ValentinKolb/uKV/cmd"

	// Register the built-in storage drivers.
	_ "github.com/ValentinKolb/uKV/lib/driver/bolt"
	_ "github.com/ValentinKolb/uKV/lib/driver/memory"
)

func main() {
	cmd.Execute()
}
