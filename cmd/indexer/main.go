package main

import "github.com/bitmapland/indexer/internal/cli"

func main() {
	cli.Execute()
}
