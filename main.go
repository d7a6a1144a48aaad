package main

import "github.com/theirongolddev/cccost/cmd"

func main() {
	cmd.Execute()
}
