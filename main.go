// The main package for the recall-ingest executable.
package main

import "github.com/JakeFAU/recall-ingest/cmd"

func main() {
	cmd.Execute()
}
