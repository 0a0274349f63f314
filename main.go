package main

import "github.com/ShabbirHasan1/alt-sendme/cmd"

func main() {
	cmd.Execute()
}
