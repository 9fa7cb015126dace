// Command backoffice is the terminal front end of the conversational back office.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(&options{}).Execute(); err != nil {
		os.Exit(1)
	}
}
