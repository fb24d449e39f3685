package main

import "cloudmedia/cmd"

func main() {
	cmd.Execute()
}
