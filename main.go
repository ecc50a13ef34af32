package main

import "grimm.is/portguard/cmd"

func main() {
	cmd.Execute()
}
