package main

import "github.com/bustedgame/busted-server/cmd/server"

func main() {
	server.NewServer().Run()
}
