// Command routeshot captures a full-page screenshot of every route of a web
// application and fails when any route does not load.
package main

import (
	"os"

	"github.com/JakeFAU/routeshot/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
