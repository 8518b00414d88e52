package main

import "github.com/kendall-kelly/usta-go-api/cmd"

func main() {
	cmd.Execute()
}
