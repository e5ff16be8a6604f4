package main

import "github.com/martinhoang/urdf2mjcf/cmd"

func main() {
	cmd.Execute()
}
