package main

import "taskmanagement-api/internal/cli"

func main() {
	cli.Execute()
}
