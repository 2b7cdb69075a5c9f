package main

import "github.com/1lker/turkish-transcribe/cmd"

func main() {
	cmd.Execute()
}
