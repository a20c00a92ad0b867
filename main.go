package main

import "github.com/ProCodeJH/antigravity-remote-control/cmd"

func main() {
	cmd.Execute()
}
