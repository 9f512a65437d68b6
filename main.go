package main

import "wallpaper-notify/cmd"

func main() {
	cmd.Run()
}
