// Command datasetd serves and manages cached warehouse datasets.
package main

import "os"

func main() {
	os.Exit(execute())
}
