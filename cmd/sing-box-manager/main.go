package main

import "github.com/oshokin/sing-box-manager/cmd/sing-box-manager/cmd"

func main() {
	cmd.Execute()
}
