package main

import "taxdesk/internal/cli"

func main() {
	cli.Execute()
}
